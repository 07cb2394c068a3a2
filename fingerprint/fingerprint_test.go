package fingerprint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCollector struct {
	signals Signals
	err     error
	panics  bool
}

func (c staticCollector) Collect() (Signals, error) {
	if c.panics {
		panic("collector exploded")
	}
	return c.signals, c.err
}

func fullSignals() Signals {
	return Signals{
		MachineID:   "9f86d081884c7d65",
		ProductUUID: "b3a1f0ee-2d14-4e0c-8c3e-0a12deadbeef",
		MACAddress:  "52:54:00:12:34:56",
		Hostname:    "builder-07",
		Platform:    "linux/amd64",
		OSVersion:   "6.8.0-45-generic",
		CPUCount:    16,
		MemoryHint:  31,
		Timezone:    "Europe/Berlin",
		Locale:      "en_US.UTF-8",
	}
}

func TestGenerateDeterministic(t *testing.T) {
	c := staticCollector{signals: fullSignals()}

	r1 := GenerateWith(c)
	r2 := GenerateWith(c)

	require.Equal(t, r1.Fingerprint, r2.Fingerprint, "same signals must hash to the same fingerprint")
	assert.Len(t, r1.Fingerprint, 64)
	assert.False(t, r1.Degraded)
}

func TestGenerateSignalSensitive(t *testing.T) {
	a := fullSignals()
	b := fullSignals()
	b.MACAddress = "52:54:00:12:34:57"

	assert.NotEqual(t,
		GenerateWith(staticCollector{signals: a}).Fingerprint,
		GenerateWith(staticCollector{signals: b}).Fingerprint,
		"any changed signal must change the fingerprint")
}

func TestConfidenceScoring(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Signals)
		want    Confidence
	}{
		{"all signals present", func(s *Signals) {}, ConfidenceHigh},
		{
			"one high-entropy signal plus mediums",
			func(s *Signals) {
				s.ProductUUID = ""
				s.MACAddress = ""
				s.Hostname = ""
			},
			ConfidenceMedium,
		},
		{
			"generic values score nothing",
			func(s *Signals) {
				s.MachineID = "unknown"
				s.ProductUUID = ""
				s.MACAddress = "00:00:00:00:00:00"
				s.Hostname = "localhost"
				s.Platform = ""
				s.CPUCount = 0
				s.MemoryHint = 0
			},
			ConfidenceLow,
		},
		{
			"two high-entropy signals alone",
			func(s *Signals) {
				s.MACAddress = ""
				s.Hostname = ""
				s.Platform = ""
				s.CPUCount = 0
				s.MemoryHint = 0
				s.Timezone = ""
			},
			ConfidenceMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := fullSignals()
			tt.mutate(&signals)
			got := GenerateWith(staticCollector{signals: signals})
			assert.Equal(t, tt.want, got.Confidence)
		})
	}
}

func TestGenerateDegradesOnError(t *testing.T) {
	r := GenerateWith(staticCollector{
		signals: Signals{Hostname: "builder-07", Platform: "linux/amd64"},
		err:     errors.New("dmi unreadable"),
	})

	assert.True(t, r.Degraded)
	assert.Equal(t, ConfidenceLow, r.Confidence)
	assert.NotEmpty(t, r.Fingerprint)

	// The fallback path folds in the current time, so it never reproduces.
	again := GenerateWith(staticCollector{
		signals: Signals{Hostname: "builder-07", Platform: "linux/amd64"},
		err:     errors.New("dmi unreadable"),
	})
	assert.NotEqual(t, r.Fingerprint, again.Fingerprint)
}

func TestGenerateNeverPanics(t *testing.T) {
	r := GenerateWith(staticCollector{panics: true})

	assert.True(t, r.Degraded)
	assert.Equal(t, ConfidenceLow, r.Confidence)
	assert.NotEmpty(t, r.Fingerprint)
}

func TestGenerateEmptySignalsDegrade(t *testing.T) {
	r := GenerateWith(staticCollector{signals: Signals{}})

	assert.True(t, r.Degraded)
	assert.Equal(t, ConfidenceLow, r.Confidence)
}

func TestGenerateHost(t *testing.T) {
	// The real collector must always produce something usable.
	r := Generate()
	require.NotEmpty(t, r.Fingerprint)
	assert.Len(t, r.Fingerprint, 64)
}
