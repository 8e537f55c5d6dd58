package store

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a resource exists in neither backend.
// Callers substitute the resource's default value.
var ErrNotFound = errors.New("store: resource not found")

// Backend is a single document store keyed by logical resource.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
}

// Adapter combines an authoritative remote store with a durable local
// cache. Reads prefer the remote and fall back to the cache; write
// behavior depends on how high-stakes the resource is (see
// SaveAuthoritative vs SaveEventual).
type Adapter struct {
	remote Backend
	local  Backend
}

// NewAdapter creates an adapter. Either backend may be nil; with no
// remote the local cache is authoritative, with no local cache remote
// failures become caller-visible misses.
func NewAdapter(remote, local Backend) *Adapter {
	return &Adapter{remote: remote, local: local}
}

// HasRemote reports whether a remote store is configured.
func (a *Adapter) HasRemote() bool {
	return a.remote != nil
}

// Load tries the remote store first; on success the local cache is
// refreshed best-effort. Any remote error (including a missing row or
// an unprovisioned table) falls back to the local cache. A miss in
// both backends returns ErrNotFound.
func (a *Adapter) Load(ctx context.Context, key string) ([]byte, error) {
	if a.remote != nil {
		payload, err := a.remote.Load(ctx, key)
		if err == nil {
			if a.local != nil {
				if cacheErr := a.local.Save(ctx, key, payload); cacheErr != nil {
					logrus.WithError(cacheErr).WithField("resource", key).Warn("Failed to refresh local cache")
				}
			}
			return payload, nil
		}
		if !errors.Is(err, ErrNotFound) {
			logrus.WithError(err).WithField("resource", key).Warn("Remote load failed, falling back to local cache")
		}
	}

	if a.local != nil {
		payload, err := a.local.Load(ctx, key)
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, ErrNotFound) {
			logrus.WithError(err).WithField("resource", key).Warn("Local load failed")
		}
	}

	return nil, ErrNotFound
}

// SaveAuthoritative writes a high-stakes document. The remote store is
// written first; on success mirror (a size-bounded copy with large
// binary attachments stripped) is cached locally best-effort. On
// remote failure the full payload is written to the local cache and
// the error is returned to the caller. With no remote configured the
// local write is the write.
func (a *Adapter) SaveAuthoritative(ctx context.Context, key string, payload, mirror []byte) error {
	if a.remote == nil {
		if a.local == nil {
			return errors.New("store: no backend configured")
		}
		return a.local.Save(ctx, key, payload)
	}

	if err := a.remote.Save(ctx, key, payload); err != nil {
		if a.local != nil {
			if localErr := a.local.Save(ctx, key, payload); localErr != nil {
				logrus.WithError(localErr).WithField("resource", key).Error("Local fallback write failed")
			}
		}
		return err
	}

	if a.local != nil && mirror != nil {
		if err := a.local.Save(ctx, key, mirror); err != nil {
			logrus.WithError(err).WithField("resource", key).Warn("Failed to mirror document to local cache")
		}
	}
	return nil
}

// SaveEventual writes a low-stakes document: the local cache is
// written synchronously and unconditionally, then the remote write is
// attempted in the background. Remote failures are logged, never
// surfaced - availability wins over strict durability here.
func (a *Adapter) SaveEventual(ctx context.Context, key string, payload []byte) error {
	var localErr error
	if a.local != nil {
		localErr = a.local.Save(ctx, key, payload)
		if localErr != nil {
			logrus.WithError(localErr).WithField("resource", key).Error("Local write failed")
		}
	}

	if a.remote != nil {
		go func(data []byte) {
			if err := a.remote.Save(context.Background(), key, data); err != nil {
				logrus.WithError(err).WithField("resource", key).Warn("Remote write failed, local copy stands")
			}
		}(payload)
	}

	return localErr
}

// SaveLocalOnly writes a document that has no remote mirror.
func (a *Adapter) SaveLocalOnly(ctx context.Context, key string, payload []byte) error {
	if a.local == nil {
		return errors.New("store: no local backend configured")
	}
	return a.local.Save(ctx, key, payload)
}
