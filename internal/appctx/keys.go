// Package appctx carries request-scoped configuration and services through
// context.Context, the way middleware in the teacher codebase builds up an
// "ambient" request context instead of threading arguments everywhere.
package appctx

import "errors"

// CTXKey is the type for all context keys used by this module, preventing
// collisions with keys defined by other packages.
type CTXKey string

const (
	// LoggerCTXKey holds the *zerolog.Logger for the current request/job.
	LoggerCTXKey CTXKey = "logger"
	// LogLevelCTXKey holds the configured zerolog.Level.
	LogLevelCTXKey CTXKey = "log_level"
	// DebugLoggingCTXKey toggles debug-level logging overrides.
	DebugLoggingCTXKey CTXKey = "debug_logging"
	// EnvironmentCTXKey holds the deployment environment (local/sandbox/production).
	EnvironmentCTXKey CTXKey = "environment"

	// DatastoreCTXKey holds the storage.Datastore implementation.
	DatastoreCTXKey CTXKey = "datastore"

	// StripeSecretCTXKey holds the payment gateway's API secret key.
	StripeSecretCTXKey CTXKey = "stripe_secret_key"
	// StripeWebhookSecretCTXKey holds the payment gateway's webhook signing secret.
	StripeWebhookSecretCTXKey CTXKey = "stripe_webhook_secret"

	// AppStoreRootCertCTXKey holds the mobile store's root certificate for chain verification.
	AppStoreRootCertCTXKey CTXKey = "appstore_root_cert"
	// AppStoreBundleIDCTXKey holds the mobile store application bundle id.
	AppStoreBundleIDCTXKey CTXKey = "appstore_bundle_id"
	// AppStoreEnvironmentCTXKey holds sandbox|production for the mobile store.
	AppStoreEnvironmentCTXKey CTXKey = "appstore_environment"

	// AuthWebhookSecretCTXKey holds the auth provider's HMAC webhook secret.
	AuthWebhookSecretCTXKey CTXKey = "auth_webhook_secret"
	// AuthSecretCTXKey holds the auth provider's API secret.
	AuthSecretCTXKey CTXKey = "auth_secret_key"

	// ObjectStoreAccountIDCTXKey holds the object storage account id.
	ObjectStoreAccountIDCTXKey CTXKey = "objectstore_account_id"
	// ObjectStoreAccessKeyCTXKey holds the object storage access key.
	ObjectStoreAccessKeyCTXKey CTXKey = "objectstore_access_key"
	// ObjectStoreSecretCTXKey holds the object storage secret key.
	ObjectStoreSecretCTXKey CTXKey = "objectstore_secret"
	// ObjectStoreBucketCTXKey holds the object storage bucket name.
	ObjectStoreBucketCTXKey CTXKey = "objectstore_bucket"
	// ObjectStoreZoneCTXKey holds the object storage region/zone.
	ObjectStoreZoneCTXKey CTXKey = "objectstore_zone"

	// RetentionDaysCTXKey holds the retention window, in days.
	RetentionDaysCTXKey CTXKey = "retention_days"
	// CleanupBatchSizeCTXKey holds the max rows per cleanup scheduler tick.
	CleanupBatchSizeCTXKey CTXKey = "cleanup_batch_size"

	// PhotographerIDCTXKey holds the authenticated photographer's uuid,
	// set by the auth middleware from the bearer token's subject.
	PhotographerIDCTXKey CTXKey = "photographer_id"

	// VersionCTXKey, CommitCTXKey, BuildTimeCTXKey hold build metadata for health checks.
	VersionCTXKey   CTXKey = "version"
	CommitCTXKey    CTXKey = "commit"
	BuildTimeCTXKey CTXKey = "build_time"
)

var (
	// ErrNotInContext is returned when a requested key is absent from the context.
	ErrNotInContext = errors.New("appctx: value not found in context")
	// ErrValueWrongType is returned when a context value exists but has the wrong type.
	ErrValueWrongType = errors.New("appctx: value has the wrong type")
)
