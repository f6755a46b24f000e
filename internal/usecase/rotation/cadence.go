package rotation

import (
	"fmt"
	"time"
)

// Cadence задаёт период смены текущего дня и правило продвижения.
// Тестовый режим продвигает указатель ровно на один день за срабатывание
// независимо от числа прошедших периодов; боевой режим навёрстывает все
// пропущенные периоды разом. Различие намеренное и выбирается только здесь.
type Cadence struct {
	Name       string
	Period     time.Duration
	SingleStep bool
}

var (
	// CadenceTest — ускоренный режим для стендов: день длится 30 секунд.
	CadenceTest = Cadence{Name: "test", Period: 30 * time.Second, SingleStep: true}
	// CadenceProduction — боевой режим: день длится сутки.
	CadenceProduction = Cadence{Name: "production", Period: 24 * time.Hour, SingleStep: false}
)

// CadenceByName возвращает режим по имени из конфига.
func CadenceByName(name string) (Cadence, error) {
	switch name {
	case CadenceTest.Name:
		return CadenceTest, nil
	case CadenceProduction.Name:
		return CadenceProduction, nil
	}
	return Cadence{}, fmt.Errorf("неизвестный режим ротации: %q", name)
}
