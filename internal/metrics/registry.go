package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Register регистрирует collector в registerer. Если такой коллектор уже есть,
// возвращается существующий, чтобы несколько экземпляров компонента в одном
// процессе писали в одни и те же серии. Nil registerer оставляет коллектор
// незарегистрированным.
func Register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if registerer == nil {
		return collector
	}
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return collector
}
