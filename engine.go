package keycore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"

	"github.com/Prashant-S29/wosh-keycore/audit"
	"github.com/Prashant-S29/wosh-keycore/internal/mem"
	"github.com/Prashant-S29/wosh-keycore/persist"
	"github.com/Prashant-S29/wosh-keycore/remote"
)

// Initialize memguard before any engine operation
func init() {
	memguard.CatchInterrupt()
}

// Engine is the client-side key engine: it creates organization key
// material from authentication factors, provisions wrapped project keys,
// and recovers project keys through the local-cache-then-remote pipeline.
//
// The engine holds no factor secrets between calls. Recovered project keys
// are kept for the session in memguard enclaves and are purged on Close.
// All methods are safe for concurrent use.
type Engine struct {
	store  persist.Store
	remote remote.Source
	audit  audit.Logger
	log    zerolog.Logger

	iterations int

	// Memory protection level achieved at startup
	memoryProtectionLevel mem.ProtectionLevel

	mu          sync.RWMutex
	sessionKeys map[string]*memguard.Enclave
	closed      bool
}

// New creates an Engine with the given local store, remote source and audit
// logger.
//
// The local store is required and its availability is verified up front; an
// unreachable store is reported as KindStorageUnavailable here rather than
// surfacing mid-pipeline. The remote source may be nil for cache-only
// operation, in which case any cache miss that would need the server is a
// KindStorageUnavailable failure. A nil audit logger installs a no-op
// logger so audit calls never fail.
//
// Memory locking is attempted when requested. Failure to lock is logged
// and reported via ProtectionLevel, never fatal: memguard still protects
// individual buffers.
func New(options Options, store persist.Store, source remote.Source, auditLogger audit.Logger) (*Engine, error) {
	const op = "new_engine"

	if err := options.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, newError(KindInvalidInput, op, "store is required", nil)
	}
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}

	if err := store.Ping(); err != nil {
		return nil, newError(KindStorageUnavailable, op, "local store is unavailable", err)
	}

	e := &Engine{
		store:       store,
		remote:      source,
		audit:       auditLogger,
		log:         options.logger(),
		iterations:  options.iterations(),
		sessionKeys: make(map[string]*memguard.Enclave),
	}

	if options.EnableMemoryLock {
		level, err := mem.Lock()
		if err != nil {
			e.log.Warn().Err(err).Msg("cannot fully protect memory; enclave protection remains active")
		}
		e.memoryProtectionLevel = level
	}

	_ = e.audit.Log("engine_initialized", true, map[string]interface{}{
		"memory_protection": int(e.memoryProtectionLevel),
		"has_remote_source": source != nil,
	})

	return e, nil
}

// ProtectionLevel reports the memory protection achieved at startup.
func (e *Engine) ProtectionLevel() mem.ProtectionLevel {
	return e.memoryProtectionLevel
}

// Organization returns the organization's key record, resolving it through
// the cache-then-remote pipeline. The record holds public material only.
func (e *Engine) Organization(ctx context.Context, orgID string) (*OrganizationKeyRecord, error) {
	if err := e.checkOpen("organization"); err != nil {
		return nil, err
	}
	record, _, err := e.resolveOrgRecord(ctx, orgID)
	return record, err
}

// Ping reports the health of the local store and, when configured, the
// remote source. The store error is KindStorageUnavailable; a remote
// failure alone does not prevent cache-served operation.
func (e *Engine) Ping(ctx context.Context) (storeErr, remoteErr error) {
	if err := e.checkOpen("ping"); err != nil {
		return err, err
	}
	if err := e.store.Ping(); err != nil {
		storeErr = newError(KindStorageUnavailable, "ping", "local store is unavailable", err)
	}
	if e.remote != nil {
		remoteErr = e.remote.Ping(ctx)
	}
	return storeErr, remoteErr
}

// CreateOrganization derives a new organization key record from the
// supplied factors and persists it to the local store. The returned record
// holds only public keys, ciphertext and factor configuration; registering
// it with the server is the caller's responsibility.
func (e *Engine) CreateOrganization(ctx context.Context, orgID string, factors FactorInput, cfg MKDFConfig) (*OrganizationKeyRecord, error) {
	const op = "create_organization"

	if err := e.checkOpen(op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindInvalidInput, op, "context cancelled", err)
	}

	record, err := CreateOrganizationKeys(orgID, factors, cfg, e.iterations)
	if err != nil {
		e.auditFailure(op, orgID, "", err)
		return nil, err
	}

	encoded, err := EncodeOrgRecord(record)
	if err != nil {
		e.auditFailure(op, orgID, "", err)
		return nil, err
	}

	// Creation is the durability point: without the local record the new
	// organization cannot be used until a remote registration exists.
	if err = e.store.PutOrgRecord(orgID, encoded); err != nil {
		werr := newError(KindStorageUnavailable, op, "failed to persist organization record", err)
		e.auditFailure(op, orgID, "", werr)
		return nil, werr
	}

	e.log.Info().Str("org_id", orgID).Msg("organization keys created")
	_ = e.audit.Log(op, true, map[string]interface{}{"org_id": orgID})

	return record, nil
}

// CreateProject generates a fresh project key, wraps it under the
// organization's agreement public key and stores the wrapped record in the
// local cache. Only public material is needed, so no factor ceremony runs.
// The plaintext project key is wiped before return; holders of the
// organization factors recover it later via RecoverProjectKey.
func (e *Engine) CreateProject(ctx context.Context, orgID, projectID string) (*WrappedProjectKey, error) {
	const op = "create_project"

	if err := e.checkOpen(op); err != nil {
		return nil, err
	}
	if projectID == "" {
		return nil, newError(KindInvalidInput, op, "missing project id", nil)
	}

	record, _, err := e.resolveOrgRecord(ctx, orgID)
	if err != nil {
		e.auditFailure(op, orgID, projectID, err)
		return nil, err
	}

	agreementPub, err := decodeB64("agreement_public_key", record.AgreementPublicKey)
	if err != nil {
		e.auditFailure(op, orgID, projectID, err)
		return nil, err
	}

	projectKey, err := GenerateProjectKey()
	if err != nil {
		e.auditFailure(op, orgID, projectID, err)
		return nil, err
	}
	defer projectKey.Destroy()

	wrapped, err := WrapProjectKey(projectKey, agreementPub)
	if err != nil {
		e.auditFailure(op, orgID, projectID, err)
		return nil, err
	}

	if err = e.cacheWrappedKey(orgID, projectID, wrapped); err != nil {
		werr := newError(KindStorageUnavailable, op, "failed to persist wrapped project key", err)
		e.auditFailure(op, orgID, projectID, werr)
		return nil, werr
	}

	e.log.Info().Str("org_id", orgID).Str("project_id", projectID).Msg("project key provisioned")
	_ = e.audit.Log(op, true, map[string]interface{}{"org_id": orgID, "project_id": projectID})

	return wrapped, nil
}

// SessionKey returns the project key recovered earlier in this session, or
// a KindInvalidInput error when no recovery has run for the project. The
// caller owns the returned buffer and must Destroy it.
func (e *Engine) SessionKey(projectID string) (*memguard.LockedBuffer, error) {
	const op = "session_key"

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, newError(KindInvalidInput, op, "engine is closed", nil)
	}

	enclave, ok := e.sessionKeys[projectID]
	if !ok {
		return nil, newError(KindInvalidInput, op,
			fmt.Sprintf("no session key for project %s", projectID), nil)
	}

	buf, err := enclave.Open()
	if err != nil {
		return nil, newError(KindInternal, op, "failed to open session key enclave", err)
	}
	return buf, nil
}

// Close purges the session key cache and releases the store, remote source
// and audit logger. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error

	for projectID := range e.sessionKeys {
		delete(e.sessionKeys, projectID)
	}

	_ = e.audit.Log("engine_closed", true, nil)
	if err := e.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audit logger: %w", err))
	}

	if e.remote != nil {
		if err := e.remote.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close remote source: %w", err))
		}
	}

	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	if e.memoryProtectionLevel != mem.ProtectionNone {
		if err := mem.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unlock memory: %w", err))
		}
	}

	if len(errs) > 0 {
		return newError(KindInternal, "close_engine", fmt.Sprintf("engine close errors: %v", errs), nil)
	}
	return nil
}

// recordOrigin reports where a record was found during resolution.
type recordOrigin string

const (
	originLocal  recordOrigin = "local"
	originRemote recordOrigin = "remote"
)

// resolveOrgRecord loads the organization record, preferring the local
// cache and falling back to the remote source. Remote results are written
// back to the cache before use; a failed write-back is logged and never
// blocks. Legacy-format records are rejected with the typed upgrade error.
func (e *Engine) resolveOrgRecord(ctx context.Context, orgID string) (*OrganizationKeyRecord, recordOrigin, error) {
	const op = "resolve_org_record"

	if orgID == "" {
		return nil, "", newError(KindInvalidInput, op, "missing organization id", nil)
	}

	cached, err := e.store.GetOrgRecord(orgID)
	if err != nil {
		// A broken cache read degrades to a remote fetch.
		e.log.Warn().Err(err).Str("org_id", orgID).Msg("local org record read failed")
	}
	if cached != nil {
		record, derr := e.decodeOrgRecord(cached.Data)
		if derr != nil {
			return nil, "", derr
		}
		return record, originLocal, nil
	}

	if e.remote == nil {
		return nil, "", newError(KindStorageUnavailable, op,
			"organization record not cached and no remote source configured", nil)
	}

	data, err := e.remote.FetchOrgKeys(ctx, orgID)
	if err != nil {
		return nil, "", newError(KindStorageUnavailable, op,
			"organization record unavailable locally and remotely", err)
	}

	record, err := e.decodeOrgRecord(data)
	if err != nil {
		return nil, "", err
	}

	if perr := e.store.PutOrgRecord(orgID, data); perr != nil {
		e.log.Warn().Err(perr).Str("org_id", orgID).Msg("org record cache write failed")
	}

	return record, originRemote, nil
}

func (e *Engine) decodeOrgRecord(data []byte) (*OrganizationKeyRecord, error) {
	stored, err := DecodeStoredOrgRecord(data)
	if err != nil {
		return nil, err
	}
	return stored.CurrentRecord()
}

// resolveWrappedKey loads the wrapped project key, cache first then remote,
// with the same write-back semantics as resolveOrgRecord.
func (e *Engine) resolveWrappedKey(ctx context.Context, orgID, projectID string) (*WrappedProjectKey, recordOrigin, error) {
	const op = "resolve_wrapped_key"

	cached, err := e.store.GetWrappedProjectKey(projectID)
	if err != nil {
		e.log.Warn().Err(err).Str("project_id", projectID).Msg("local wrapped key read failed")
	}
	if cached != nil {
		wrapped, derr := decodeWrappedKey(cached.Data)
		if derr != nil {
			return nil, "", derr
		}
		return wrapped, originLocal, nil
	}

	if e.remote == nil {
		return nil, "", newError(KindStorageUnavailable, op,
			"wrapped project key not cached and no remote source configured", nil)
	}

	data, err := e.remote.FetchProjectKeys(ctx, orgID, projectID)
	if err != nil {
		return nil, "", newError(KindStorageUnavailable, op,
			"wrapped project key unavailable locally and remotely", err)
	}

	wrapped, err := decodeWrappedKey(data)
	if err != nil {
		return nil, "", err
	}

	if perr := e.cacheWrappedKey(orgID, projectID, wrapped); perr != nil {
		e.log.Warn().Err(perr).Str("project_id", projectID).Msg("wrapped key cache write failed")
	}

	return wrapped, originRemote, nil
}

// cacheWrappedKey stores a wrapped key in its local cache envelope.
func (e *Engine) cacheWrappedKey(orgID, projectID string, wrapped *WrappedProjectKey) error {
	envelope := CachedProjectKey{
		ProjectID: projectID,
		OrgID:     orgID,
		Wrapped:   *wrapped,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode wrapped key envelope: %w", err)
	}
	return e.store.PutWrappedProjectKey(projectID, orgID, data)
}

// decodeWrappedKey parses stored wrapped-key bytes, accepting both the
// cache envelope and the bare record the server returns.
func decodeWrappedKey(data []byte) (*WrappedProjectKey, error) {
	const op = "decode_wrapped_key"

	if len(data) == 0 {
		return nil, newError(KindInvalidInput, op, "empty wrapped key payload", nil)
	}

	var envelope CachedProjectKey
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Wrapped.Ciphertext != "" {
		return &envelope.Wrapped, nil
	}

	var bare WrappedProjectKey
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, newError(KindInvalidInput, op, "malformed wrapped key payload", err)
	}
	if bare.Ciphertext == "" {
		return nil, newError(KindInvalidInput, op, "unrecognizable wrapped key payload", nil)
	}
	return &bare, nil
}

func (e *Engine) checkOpen(op string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return newError(KindInvalidInput, op, "engine is closed", nil)
	}
	return nil
}

func (e *Engine) auditFailure(op, orgID, projectID string, err error) {
	meta := map[string]interface{}{
		"org_id":     orgID,
		"error_kind": KindOf(err).String(),
	}
	if projectID != "" {
		meta["project_id"] = projectID
	}
	if KindOf(err) == KindInternal {
		e.log.Error().Err(err).Str("op", op).Msg("internal failure")
	}
	_ = e.audit.Log(op, false, meta)
}
