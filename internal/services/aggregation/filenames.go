package aggregation

import (
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
)

const (
	LangRU = "ru"
	LangEN = "en"
)

var monthsRU = [12]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

var monthsEN = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// NormalizeLang сводит languageCode ("en-US", "RU") к поддерживаемому языку, по умолчанию ru.
func NormalizeLang(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	if code == LangEN {
		return LangEN
	}
	return LangRU
}

// FileNames возвращает имена (лист подбора, стикеры) для момента t.
func FileNames(mode models.AggregationMode, lang string, t time.Time) (string, string) {
	var listPrefix, stickersPrefix, month string
	switch NormalizeLang(lang) {
	case LangEN:
		month = monthsEN[t.Month()-1]
		listPrefix, stickersPrefix = "Pick list", "Stickers"
		if mode == models.AggregationModeWaiting {
			listPrefix, stickersPrefix = "Waiting", "Waiting stickers"
		}
	default:
		month = monthsRU[t.Month()-1]
		listPrefix, stickersPrefix = "Лист подбора", "Стикеры"
		if mode == models.AggregationModeWaiting {
			listPrefix, stickersPrefix = "Ожидающие", "Стикеры ожидающие"
		}
	}
	stamp := fmt.Sprintf("%d %s %02d-%02d", t.Day(), month, t.Hour(), t.Minute())
	return listPrefix + " " + stamp + ".pdf", stickersPrefix + " " + stamp + ".pdf"
}
