package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"concordia/internal/records/models"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		activity *models.ProcessingActivity
		want     int
	}{
		{
			name:     "nil activity scores zero",
			activity: nil,
			want:     0,
		},
		{
			name:     "empty activity scores zero",
			activity: &models.ProcessingActivity{},
			want:     0,
		},
		{
			name: "biometric and health stack to six",
			activity: &models.ProcessingActivity{
				SensitiveData:  true,
				DataCategories: []string{models.CategoryBiometric, models.CategoryHealth},
			},
			want: 6,
		},
		{
			name: "international transfers alone",
			activity: &models.ProcessingActivity{
				InternationalTransfers: true,
			},
			want: 2,
		},
		{
			name: "massive volume plus transfers",
			activity: &models.ProcessingActivity{
				InternationalTransfers: true,
				DataVolume:             models.VolumeMassive,
			},
			want: 4,
		},
		{
			name: "category matching ignores case and whitespace",
			activity: &models.ProcessingActivity{
				DataCategories: []string{" Biometricos ", "SALUD"},
			},
			want: 6,
		},
		{
			name: "everything",
			activity: &models.ProcessingActivity{
				InternationalTransfers: true,
				DataVolume:             models.VolumeMassive,
				DataCategories:         []string{models.CategoryBiometric, models.CategoryHealth},
			},
			want: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.activity))
		})
	}
}

func TestLevel(t *testing.T) {
	assert.Equal(t, models.RiskLow, Level(0))
	assert.Equal(t, models.RiskLow, Level(2))
	assert.Equal(t, models.RiskMedium, Level(3))
	assert.Equal(t, models.RiskMedium, Level(4))
	assert.Equal(t, models.RiskHigh, Level(5))
	assert.Equal(t, models.RiskHigh, Level(10))
}

func TestConsistent(t *testing.T) {
	t.Run("critical is never downgraded", func(t *testing.T) {
		a := &models.ProcessingActivity{RiskLevel: models.RiskCritical}
		assert.True(t, Consistent(a))
	})

	t.Run("matching level is consistent", func(t *testing.T) {
		a := &models.ProcessingActivity{
			RiskLevel:      models.RiskHigh,
			DataCategories: []string{models.CategoryBiometric, models.CategoryHealth},
		}
		assert.True(t, Consistent(a))
	})

	t.Run("stale level is inconsistent", func(t *testing.T) {
		a := &models.ProcessingActivity{
			RiskLevel:      models.RiskLow,
			DataCategories: []string{models.CategoryBiometric, models.CategoryHealth},
		}
		assert.False(t, Consistent(a))
	})

	t.Run("unset level on a scoring activity is inconsistent", func(t *testing.T) {
		a := &models.ProcessingActivity{
			DataCategories: []string{models.CategoryBiometric},
		}
		assert.False(t, Consistent(a))
	})
}
