package documents

import (
	"strings"
	"unicode"

	"github.com/BearBump/SellerFlow/internal/models"
)

type label int

const (
	lOrderList label = iota
	lWaitingList
	lGenerated
	lOrders
	lSupplies
	lShop
	lSupply
	lSupplyName
	lRows
	lOrderID
	lPhoto
	lBrand
	lTitle
	lAge
	lNmID
	lSticker
	lNoOrders
)

// русский, английский
var labelText = [...][2]string{
	lOrderList:   {"Лист подбора", "Pick list"},
	lWaitingList: {"Ожидающие заказы", "Waiting orders"},
	lGenerated:   {"Сформирован", "Generated"},
	lOrders:      {"Заказов", "Orders"},
	lSupplies:    {"Поставок", "Supplies"},
	lShop:        {"Магазин", "Shop"},
	lSupply:      {"Поставка", "Supply"},
	lSupplyName:  {"Название", "Name"},
	lRows:        {"Строк", "Rows"},
	lOrderID:     {"Заказ", "Order"},
	lPhoto:       {"Фото", "Photo"},
	lBrand:       {"Бренд", "Brand"},
	lTitle:       {"Наименование", "Title"},
	lAge:         {"Возраст", "Age"},
	lNmID:        {"Артикул WB", "nmId"},
	lSticker:     {"Стикер", "Sticker"},
	lNoOrders:    {"Нет заказов", "No orders"},
}

// labels: подписи документа на одном языке.
type labels int

func labelsFor(lang string) labels {
	if strings.HasPrefix(strings.ToLower(lang), "en") {
		return 1
	}
	return 0
}

func (l labels) text(k label) string { return labelText[k][l] }

func (l labels) texts(ks ...label) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = l.text(k)
	}
	return out
}

func (l labels) heading(mode models.AggregationMode) string {
	if mode == models.AggregationModeWaiting {
		return l.text(lWaitingList)
	}
	return l.text(lOrderList)
}

var translitRU = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "shch", 'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu",
	'я': "ya",
}

// translit нужен только для встроенного шрифта: в cp1252 нет кириллицы.
func translit(s string) string {
	var b strings.Builder
	for _, r := range s {
		lower := unicode.ToLower(r)
		lat, ok := translitRU[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if lower != r && lat != "" {
			lat = strings.ToUpper(lat[:1]) + lat[1:]
		}
		b.WriteString(lat)
	}
	return b.String()
}
