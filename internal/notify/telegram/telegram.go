package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.telegram.org"

// Sender отправляет документы и тексты ошибок через Telegram Bot API.
type Sender struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Sender {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// APIError: ответ Bot API с ok=false или не-2xx статусом.
type APIError struct {
	Method      string
	Status      int
	Description string
}

func (e *APIError) Error() string {
	return "telegram " + e.Method + ": http " + strconv.Itoa(e.Status) + ": " + e.Description
}

func (s *Sender) SendDocuments(ctx context.Context, chatID int64, orderList, stickers models.Document, lang string) error {
	t := textsFor(lang)
	if err := s.sendDocument(ctx, chatID, orderList, t.orderListCaption); err != nil {
		return errors.Wrap(err, "send order list")
	}
	if err := s.sendDocument(ctx, chatID, stickers, t.stickersCaption); err != nil {
		return errors.Wrap(err, "send stickers")
	}
	return nil
}

func (s *Sender) SendFailure(ctx context.Context, chatID int64, message, lang string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    textsFor(lang).failurePrefix + message,
	})
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	return s.call(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

func (s *Sender) sendDocument(ctx context.Context, chatID int64, doc models.Document, caption string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return errors.Wrap(err, "write chat_id")
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return errors.Wrap(err, "write caption")
		}
	}
	fw, err := mw.CreateFormFile("document", doc.FileName)
	if err != nil {
		return errors.Wrap(err, "create form file")
	}
	if _, err := fw.Write(doc.Data); err != nil {
		return errors.Wrap(err, "write document")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "close multipart")
	}
	return s.call(ctx, "sendDocument", mw.FormDataContentType(), &buf)
}

func (s *Sender) call(ctx context.Context, method, contentType string, body io.Reader) error {
	u := s.baseURL + "/bot" + s.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpc.Do(req)
	if err != nil {
		// в тексте ошибки url с токеном, его не отдаём
		return errors.Errorf("telegram %s: request failed", method)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ar apiResponse
	_ = json.Unmarshal(b, &ar)
	if resp.StatusCode/100 != 2 || !ar.OK {
		desc := ar.Description
		if desc == "" {
			desc = strings.TrimSpace(string(b))
		}
		return &APIError{Method: method, Status: resp.StatusCode, Description: desc}
	}
	return nil
}
