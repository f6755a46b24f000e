// Package permute строит детерминированную перестановку пула контента
// по идентификатору пользователя. Перестановка должна воспроизводиться
// бит-в-бит: от неё зависят уже выданные расписания.
package permute

import (
	"strconv"
	"strings"
)

const (
	lcgMultiplier = 1664525
	lcgIncrement  = 1013904223
)

// Seed выводит 32-битное зерно из идентификатора пользователя:
// разделители отбрасываются, берутся первые 8 шестнадцатеричных символов.
// Один и тот же идентификатор всегда даёт одно и то же зерно.
func Seed(userID string) uint32 {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '-', ':', ' ':
			return -1
		}
		return r
	}, userID)
	if len(clean) > 8 {
		clean = clean[:8]
	}
	v, err := strconv.ParseUint(clean, 16, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// Shuffle возвращает перестановку items по схеме Фишера-Йетса,
// управляемой линейным конгруэнтным генератором
// state = state*1664525 + 1013904223 (mod 2^32). Исходный срез не меняется.
func Shuffle(items []int64, seed uint32) []int64 {
	out := make([]int64, len(items))
	copy(out, items)
	state := seed
	for i := len(out) - 1; i >= 1; i-- {
		state = state*lcgMultiplier + lcgIncrement
		j := int(state % uint32(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
