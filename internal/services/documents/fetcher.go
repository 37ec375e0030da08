package documents

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const maxImageBytes = 10 << 20

// ImageFetcher скачивает картинку карточки с перебором вариантов URL.
// Результат нормализуется и кэшируется по исходному URL.
type ImageFetcher struct {
	httpc      *http.Client
	cache      BytesCache
	normalizer Normalizer
	logger     *zap.Logger

	attempts   int
	retryDelay time.Duration
	cacheTTL   time.Duration
}

func NewImageFetcher(cache BytesCache, normalizer Normalizer, logger *zap.Logger) *ImageFetcher {
	if normalizer == nil {
		normalizer = PassThrough{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageFetcher{
		httpc:      &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		normalizer: normalizer,
		logger:     logger,
		attempts:   2,
		retryDelay: 200 * time.Millisecond,
		cacheTTL:   24 * time.Hour,
	}
}

func (f *ImageFetcher) WithSettings(timeout time.Duration, attempts int, cacheTTL time.Duration) *ImageFetcher {
	if timeout > 0 {
		f.httpc = &http.Client{Timeout: timeout}
	}
	if attempts > 0 {
		f.attempts = attempts
	}
	if cacheTTL > 0 {
		f.cacheTTL = cacheTTL
	}
	return f
}

// digest: короткое стабильное имя для URL, в ключе кэша и в имени картинки в PDF.
func digest(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Fetch возвращает false, если ни один вариант не удался. Ошибки наружу не отдаются.
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, bool) {
	candidates := imageCandidates(rawURL)
	if len(candidates) == 0 {
		return nil, false
	}

	key := "img:" + digest(rawURL)
	if f.cache != nil {
		b, ok, err := f.cache.Get(ctx, key)
		if err != nil {
			f.logger.Warn("image cache get", zap.String("url", rawURL), zap.Error(err))
		} else if ok {
			return b, true
		}
	}

	var lastErr error
	for _, u := range candidates {
		for attempt := 0; attempt < f.attempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return nil, false
				case <-time.After(f.retryDelay):
				}
			}
			raw, retryable, err := f.download(ctx, u)
			if err != nil {
				lastErr = err
				if !retryable {
					break
				}
				continue
			}
			out, err := f.normalizer.Normalize(raw)
			if err != nil {
				// битые байты повтором не исправить
				lastErr = err
				break
			}
			if f.cache != nil {
				if err := f.cache.Set(ctx, key, out, f.cacheTTL); err != nil {
					f.logger.Warn("image cache set", zap.String("url", rawURL), zap.Error(err))
				}
			}
			return out, true
		}
	}

	f.logger.Warn("image fallback exhausted",
		zap.String("url", rawURL),
		zap.Int("candidates", len(candidates)),
		zap.Error(lastErr),
	)
	return nil, false
}

func (f *ImageFetcher) download(ctx context.Context, u string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "build request")
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// 4xx (кроме 429): варианта нет, повторять бессмысленно
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, errors.Errorf("image %s: http %d", u, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, true, errors.Wrap(err, "read image")
	}
	if len(b) == 0 {
		return nil, false, errors.Errorf("image %s: empty body", u)
	}
	return b, false, nil
}
