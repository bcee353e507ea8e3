// Package config loads typed configuration for the run controller, the worker library, and
// the resume trigger from environment variables only — these binaries run as Job/Pod
// templates, not human-operated CLIs, so there is no argv flag surface to bind instead.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/playbookrun/controller/internal/blob"
	"github.com/playbookrun/controller/internal/models"
)

// LogSafeEnvVars lists the env vars whose values are safe to log at startup. Everything else
// (bearer tokens, connection strings) is withheld even at debug level.
var LogSafeEnvVars = []string{
	"ORG_ID",
	"RUN_ID",
	"STEP_ID",
	"NAMESPACE",
	"IMAGE_REGISTRY",
	"POLL_INTERVAL_SECONDS",
	"HEARTBEAT_INTERVAL_SECONDS",
	"ADMIN_ADDRESS",
	"LOG_LEVELS",
	"BLOB_STORE_TYPE",
	"BLOB_STORE_LOCAL_DIR",
	"BLOB_STORE_GCS_BUCKET",
	"FIRESTORE_PROJECT_ID",
	"RESUME_THREAD_ID",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for _, name := range LogSafeEnvVars {
		_ = v.BindEnv(name)
	}
	_ = v.BindEnv("SECRET_TOKEN") // deliberately not in LogSafeEnvVars
	v.SetDefault("POLL_INTERVAL_SECONDS", 10)
	v.SetDefault("HEARTBEAT_INTERVAL_SECONDS", 30)
	v.SetDefault("ADMIN_ADDRESS", ":8080")
	v.SetDefault("BLOB_STORE_TYPE", string(blob.LocalStoreType))
	v.SetDefault("BLOB_STORE_LOCAL_DIR", "/shared/artifacts")
	return v
}

func requireString(v *viper.Viper, name string) (string, error) {
	val := v.GetString(name)
	if strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("error required environment variable %s is not set", name)
	}
	return val, nil
}

// ControllerConfig is the run controller binary's environment-driven configuration.
type ControllerConfig struct {
	OrgID             models.OrgID
	RunID             models.RunID
	Namespace         string
	ImageRegistry     string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	AdminAddress      string
	LogLevels         string
	FirestoreProject  string
	BlobStore         blob.Config
}

func LoadControllerConfig() (*ControllerConfig, error) {
	v := newViper()

	orgIDStr, err := requireString(v, "ORG_ID")
	if err != nil {
		return nil, err
	}
	runIDStr, err := requireString(v, "RUN_ID")
	if err != nil {
		return nil, err
	}
	runID, err := models.RunIDFromString(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing RUN_ID: %w", err)
	}
	namespace, err := requireString(v, "NAMESPACE")
	if err != nil {
		return nil, err
	}
	firestoreProject, err := requireString(v, "FIRESTORE_PROJECT_ID")
	if err != nil {
		return nil, err
	}

	return &ControllerConfig{
		OrgID:             models.OrgID(orgIDStr),
		RunID:             runID,
		Namespace:         namespace,
		ImageRegistry:     v.GetString("IMAGE_REGISTRY"),
		PollInterval:      time.Duration(v.GetInt("POLL_INTERVAL_SECONDS")) * time.Second,
		HeartbeatInterval: time.Duration(v.GetInt("HEARTBEAT_INTERVAL_SECONDS")) * time.Second,
		AdminAddress:      v.GetString("ADMIN_ADDRESS"),
		LogLevels:         v.GetString("LOG_LEVELS"),
		FirestoreProject:  firestoreProject,
		BlobStore: blob.Config{
			StoreType:     v.GetString("BLOB_STORE_TYPE"),
			LocalStoreDir: v.GetString("BLOB_STORE_LOCAL_DIR"),
			GCSBucket:     v.GetString("BLOB_STORE_GCS_BUCKET"),
		},
	}, nil
}

// WorkerConfig is the step worker binary's environment-driven configuration. It is sourced
// from the same CreateJobRequest env the cluster adapter writes into the Job spec.
type WorkerConfig struct {
	OrgID            models.OrgID
	RunID            models.RunID
	StepID           string
	Namespace        string
	ResumeThreadID   string
	LogLevels        string
	FirestoreProject string
	BlobStore        blob.Config
}

func LoadWorkerConfig() (*WorkerConfig, error) {
	v := newViper()

	orgIDStr, err := requireString(v, "ORG_ID")
	if err != nil {
		return nil, err
	}
	runIDStr, err := requireString(v, "RUN_ID")
	if err != nil {
		return nil, err
	}
	runID, err := models.RunIDFromString(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing RUN_ID: %w", err)
	}
	stepID, err := requireString(v, "STEP_ID")
	if err != nil {
		return nil, err
	}
	namespace, err := requireString(v, "NAMESPACE")
	if err != nil {
		return nil, err
	}
	firestoreProject, err := requireString(v, "FIRESTORE_PROJECT_ID")
	if err != nil {
		return nil, err
	}

	return &WorkerConfig{
		OrgID:            models.OrgID(orgIDStr),
		RunID:            runID,
		StepID:           stepID,
		Namespace:        namespace,
		ResumeThreadID:   v.GetString("RESUME_THREAD_ID"),
		LogLevels:        v.GetString("LOG_LEVELS"),
		FirestoreProject: firestoreProject,
		BlobStore: blob.Config{
			StoreType:     v.GetString("BLOB_STORE_TYPE"),
			LocalStoreDir: v.GetString("BLOB_STORE_LOCAL_DIR"),
			GCSBucket:     v.GetString("BLOB_STORE_GCS_BUCKET"),
		},
	}, nil
}

// ResumeTriggerConfig is the resume trigger webhook binary's environment-driven configuration.
// It is org-agnostic at startup: each incoming notification carries its own org and run.
type ResumeTriggerConfig struct {
	Namespace        string
	ImageRegistry    string
	AdminAddress     string
	LogLevels        string
	FirestoreProject string
}

func LoadResumeTriggerConfig() (*ResumeTriggerConfig, error) {
	v := newViper()

	namespace, err := requireString(v, "NAMESPACE")
	if err != nil {
		return nil, err
	}
	firestoreProject, err := requireString(v, "FIRESTORE_PROJECT_ID")
	if err != nil {
		return nil, err
	}

	return &ResumeTriggerConfig{
		Namespace:        namespace,
		ImageRegistry:    v.GetString("IMAGE_REGISTRY"),
		AdminAddress:     v.GetString("ADMIN_ADDRESS"),
		LogLevels:        v.GetString("LOG_LEVELS"),
		FirestoreProject: firestoreProject,
	}, nil
}
