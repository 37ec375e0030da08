package telegram

import "strings"

type texts struct {
	orderListCaption string
	stickersCaption  string
	failurePrefix    string
}

var textsRU = texts{
	orderListCaption: "Лист подбора",
	stickersCaption:  "Стикеры",
	failurePrefix:    "Не удалось сформировать листы: ",
}

var textsEN = texts{
	orderListCaption: "Pick list",
	stickersCaption:  "Stickers",
	failurePrefix:    "Failed to build the lists: ",
}

func textsFor(lang string) texts {
	if strings.HasPrefix(strings.ToLower(lang), "en") {
		return textsEN
	}
	return textsRU
}
