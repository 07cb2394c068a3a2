// Package fingerprint produces a stable device fingerprint from host
// environment signals. The fingerprint is used by the key engine as the
// device possession factor: its string equality against the value registered
// at organization-creation time is the only security gate. The confidence
// score is advisory and is surfaced so callers can warn when the identity
// signals are weak; it never gates recovery by itself.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Confidence grades how much entropy the collected signals carry.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Signals is the fixed, ordered set of environment signals that feed the
// fingerprint hash. Field order here is the hashing order and is part of the
// fingerprint format: changing it changes every fingerprint.
type Signals struct {
	MachineID   string `json:"machine_id,omitempty"`
	ProductUUID string `json:"product_uuid,omitempty"`
	MACAddress  string `json:"mac_address,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Platform    string `json:"platform,omitempty"`
	OSVersion   string `json:"os_version,omitempty"`
	CPUCount    int    `json:"cpu_count,omitempty"`
	MemoryHint  uint64 `json:"memory_hint,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// Result is the outcome of a fingerprint generation.
type Result struct {
	Fingerprint string     `json:"fingerprint"`
	Info        Signals    `json:"info"`
	Confidence  Confidence `json:"confidence"`
	// Degraded is set when signal collection failed and the fingerprint was
	// built from the fallback path. A degraded fingerprint is not stable
	// across sessions and should not be registered as a device factor.
	Degraded bool `json:"degraded,omitempty"`
}

// Collector gathers host signals. The production collector reads machine
// identity files and OS introspection; tests inject deterministic ones.
type Collector interface {
	Collect() (Signals, error)
}

const signalDelimiter = "|"

// Generate collects signals from the local host and hashes them into a
// fingerprint. It never returns an error and never panics: any collection
// failure degrades to a fallback fingerprint with confidence low.
func Generate() Result {
	return GenerateWith(hostCollector{})
}

// GenerateWith is Generate with an injectable collector.
func GenerateWith(c Collector) (result Result) {
	// A collector must never be able to break the caller. Collection
	// reaches into platform files and interfaces that can misbehave in
	// containers and unusual environments.
	defer func() {
		if r := recover(); r != nil {
			result = fallback(Signals{}, fmt.Sprintf("collector panic: %v", r))
		}
	}()

	signals, err := c.Collect()
	if err != nil {
		return fallback(signals, err.Error())
	}

	fp := hashSignals(signals)
	if fp == "" {
		return fallback(signals, "no signals collected")
	}

	return Result{
		Fingerprint: fp,
		Info:        signals,
		Confidence:  score(signals),
	}
}

// hashSignals joins the present signals with the fixed delimiter in the
// fixed order and hashes them. Absent signals contribute an empty slot so
// positions stay aligned across hosts with different capabilities.
func hashSignals(s Signals) string {
	parts := []string{
		s.MachineID,
		s.ProductUUID,
		s.MACAddress,
		s.Hostname,
		s.Platform,
		s.OSVersion,
		strconv.Itoa(s.CPUCount),
		strconv.FormatUint(s.MemoryHint, 10),
		s.Timezone,
		s.Locale,
	}

	joined := strings.Join(parts, signalDelimiter)
	if strings.Trim(joined, signalDelimiter+"0") == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// fallback builds a last-resort fingerprint from whatever signals survived
// plus the current time. It is deliberately unstable so it can never
// silently pass a device-equality gate registered from a healthy host.
func fallback(partial Signals, _ string) Result {
	parts := []string{
		partial.Hostname,
		partial.Platform,
		strconv.FormatInt(time.Now().UnixNano(), 10),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, signalDelimiter)))

	return Result{
		Fingerprint: hex.EncodeToString(sum[:]),
		Info:        partial,
		Confidence:  ConfidenceLow,
		Degraded:    true,
	}
}

// genericValues are signal values that carry no identifying entropy and
// score zero even when present.
var genericValues = map[string]struct{}{
	"localhost":         {},
	"localhost.local":   {},
	"unknown":           {},
	"00:00:00:00:00:00": {},
	"03000200-0400-0500-0006-000700080009": {}, // common vendor placeholder UUID
}

func nonGeneric(v string) bool {
	if v == "" {
		return false
	}
	_, generic := genericValues[strings.ToLower(v)]
	return !generic
}

// score computes the weighted confidence sum: the four high-entropy signals
// contribute 2 points each when present and non-generic, the four
// medium-entropy signals 1 point each. Total >=8 is high, >=4 medium,
// anything below is low.
func score(s Signals) Confidence {
	points := 0

	for _, v := range []string{s.MachineID, s.ProductUUID, s.MACAddress, s.Hostname} {
		if nonGeneric(v) {
			points += 2
		}
	}

	if s.Platform != "" {
		points++
	}
	if s.CPUCount > 0 {
		points++
	}
	if s.MemoryHint > 0 {
		points++
	}
	if s.Timezone != "" {
		points++
	}

	switch {
	case points >= 8:
		return ConfidenceHigh
	case points >= 4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
