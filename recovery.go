package keycore

import (
	"context"
	"time"

	"github.com/awnumar/memguard"

	"github.com/Prashant-S29/wosh-keycore/fingerprint"
)

// recoveryState tracks the recovery pipeline position. Transitions are
// strictly forward; any failure ends the run in stateError carrying the
// failing step's error kind unchanged.
type recoveryState int

const (
	stateIdle recoveryState = iota
	stateFingerprintReady
	stateOrgKeysResolved
	stateFactorsVerified
	statePrivateKeyRecovered
	stateProjectKeyResolved
	stateUnwrapped
	stateDone
	stateError
)

func (s recoveryState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateFingerprintReady:
		return "fingerprint_ready"
	case stateOrgKeysResolved:
		return "org_keys_resolved"
	case stateFactorsVerified:
		return "factors_verified"
	case statePrivateKeyRecovered:
		return "private_key_recovered"
	case stateProjectKeyResolved:
		return "project_key_resolved"
	case stateUnwrapped:
		return "unwrapped"
	case stateDone:
		return "done"
	default:
		return "error"
	}
}

// RecoveryRequest names the project to recover and carries the
// authentication factors. When the organization uses the device factor and
// DeviceFingerprint is empty, the engine fingerprints the current device
// itself; a pre-computed fingerprint short-circuits that step.
type RecoveryRequest struct {
	OrgID     string
	ProjectID string
	Factors   FactorInput
}

// recoveryRun is the per-call pipeline state. One run per request; runs
// share nothing beyond the engine's store and session cache.
type recoveryRun struct {
	engine  *Engine
	request RecoveryRequest
	state   recoveryState
	started time.Time

	orgOrigin     recordOrigin
	projectOrigin recordOrigin
}

// RecoverProjectKey runs the full recovery pipeline for one project key:
// fingerprint the device, resolve the organization record (cache, then
// remote with cache fill), verify factors and recover the organization
// seed, resolve the wrapped project key the same way, and unwrap it.
//
// The recovered key is returned in a locked buffer owned by the caller and
// is also retained in the engine's session cache for SessionKey. The
// organization seed and every other intermediate secret are wiped before
// return on every path, including early errors.
//
// The context governs remote fetches only; local crypto always runs to
// completion. Failures keep the kind assigned by the failing step:
// callers can distinguish a wrong passphrase (KindAuthenticationFailure)
// from an unregistered device (KindDeviceMismatch) from an unreachable
// backend (KindStorageUnavailable) without parsing messages.
func (e *Engine) RecoverProjectKey(ctx context.Context, req RecoveryRequest) (*memguard.LockedBuffer, error) {
	const op = "recover_project_key"

	if err := e.checkOpen(op); err != nil {
		return nil, err
	}
	if req.OrgID == "" {
		return nil, newError(KindInvalidInput, op, "missing organization id", nil)
	}
	if req.ProjectID == "" {
		return nil, newError(KindInvalidInput, op, "missing project id", nil)
	}

	run := &recoveryRun{
		engine:  e,
		request: req,
		state:   stateIdle,
		started: time.Now(),
	}

	key, err := run.execute(ctx)
	if err != nil {
		run.state = stateError
		e.log.Debug().
			Str("org_id", req.OrgID).
			Str("project_id", req.ProjectID).
			Str("state", run.state.String()).
			Str("error_kind", KindOf(err).String()).
			Msg("recovery failed")
		_ = e.audit.Log(op, false, map[string]interface{}{
			"org_id":      req.OrgID,
			"project_id":  req.ProjectID,
			"error_kind":  KindOf(err).String(),
			"duration_ms": time.Since(run.started).Milliseconds(),
		})
		return nil, err
	}

	run.state = stateDone
	_ = e.audit.Log(op, true, map[string]interface{}{
		"org_id":         req.OrgID,
		"project_id":     req.ProjectID,
		"org_origin":     string(run.orgOrigin),
		"project_origin": string(run.projectOrigin),
		"duration_ms":    time.Since(run.started).Milliseconds(),
	})

	return key, nil
}

func (r *recoveryRun) execute(ctx context.Context) (*memguard.LockedBuffer, error) {
	e := r.engine

	// Fingerprint first: whether the organization needs it is not known
	// until its record is loaded, and generation is cheap and infallible.
	factors := r.request.Factors
	if factors.DeviceFingerprint == "" {
		fp := fingerprint.Generate()
		if fp.Degraded {
			e.log.Warn().
				Str("confidence", string(fp.Confidence)).
				Msg("device fingerprint degraded; recovery on this device may not be reproducible")
		}
		factors.DeviceFingerprint = fp.Fingerprint
	}
	r.advance(stateFingerprintReady)

	record, orgOrigin, err := e.resolveOrgRecord(ctx, r.request.OrgID)
	if err != nil {
		return nil, err
	}
	r.orgOrigin = orgOrigin
	r.advance(stateOrgKeysResolved)

	if err = validateFactorInput(record.MKDF, factors); err != nil {
		return nil, err
	}
	r.advance(stateFactorsVerified)

	orgSeed, err := RecoverOrganizationKey(factors, record)
	if err != nil {
		return nil, err
	}
	defer orgSeed.Destroy()
	r.advance(statePrivateKeyRecovered)

	wrapped, projectOrigin, err := e.resolveWrappedKey(ctx, r.request.OrgID, r.request.ProjectID)
	if err != nil {
		return nil, err
	}
	r.projectOrigin = projectOrigin
	r.advance(stateProjectKeyResolved)

	projectKey, err := UnwrapProjectKey(wrapped, orgSeed)
	if err != nil {
		return nil, err
	}
	r.advance(stateUnwrapped)

	// Seal into the session cache; the enclave owns the bytes from here,
	// the caller gets a fresh open of the same enclave.
	enclave := projectKey.Seal()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, newError(KindInvalidInput, "recover_project_key", "engine is closed", nil)
	}
	e.sessionKeys[r.request.ProjectID] = enclave
	e.mu.Unlock()

	out, err := enclave.Open()
	if err != nil {
		return nil, newError(KindInternal, "recover_project_key", "failed to open session key enclave", err)
	}

	return out, nil
}

func (r *recoveryRun) advance(next recoveryState) {
	r.state = next
	r.engine.log.Debug().
		Str("org_id", r.request.OrgID).
		Str("project_id", r.request.ProjectID).
		Str("state", next.String()).
		Msg("recovery state")
}
