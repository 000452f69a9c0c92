package assessment

import (
	"math/rand/v2"

	"github.com/speaklens/speaklens/internal/models"
)

// VariantPicker makes the one-time task-variant decision for a session. The
// randomness lives behind this interface so tests can pin the choice.
type VariantPicker interface {
	Pick() models.TaskVariant
}

type randomPicker struct{}

func (randomPicker) Pick() models.TaskVariant {
	if rand.IntN(2) == 0 {
		return models.TaskPicture
	}
	return models.TaskRoleplay
}
