package config

import (
	"os"
	"testing"
	"time"
)

// clearEnv unsets all LEARN_ environment variables for a clean test.
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"LEARN_SERVER_PORT",
		"LEARN_SERVER_HOST",
		"LEARN_STORE_DRIVER",
		"LEARN_DATABASE_URL",
		"LEARN_DATABASE_MAX_CONNS",
		"LEARN_DATABASE_MIN_CONNS",
		"LEARN_DATABASE_MIGRATE",
		"LEARN_MONGO_URL",
		"LEARN_MONGO_DATABASE",
		"LEARN_CACHE_DRIVER",
		"LEARN_CACHE_URL",
		"LEARN_STATS_TTL",
		"LEARN_TASKS_WORKERS",
		"LEARN_TASKS_QUEUE_SIZE",
		"LEARN_LOG_LEVEL",
		"LEARN_LOG_FORMAT",
		"LEARN_CURRICULUM_PATH",
	}
	for _, v := range envVars {
		_ = os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Store.Driver != StorePostgres {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Database.MaxConns != 25 {
		t.Errorf("Database.MaxConns = %d, want 25", cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns != 5 {
		t.Errorf("Database.MinConns = %d, want 5", cfg.Database.MinConns)
	}
	if !cfg.Database.Migrate {
		t.Error("Database.Migrate = false, want true")
	}
	if cfg.Mongo.Database != "pai_content" {
		t.Errorf("Mongo.Database = %q, want pai_content", cfg.Mongo.Database)
	}
	if cfg.Cache.Driver != CacheMemory {
		t.Errorf("Cache.Driver = %q, want memory", cfg.Cache.Driver)
	}
	if cfg.Cache.StatsTTL != 30*time.Second {
		t.Errorf("Cache.StatsTTL = %s, want 30s", cfg.Cache.StatsTTL)
	}
	if cfg.Tasks.Workers != 2 || cfg.Tasks.QueueSize != 256 {
		t.Errorf("Tasks = %+v, want 2 workers and 256 slots", cfg.Tasks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("LEARN_SERVER_PORT", "9090")
	t.Setenv("LEARN_STORE_DRIVER", "Mongo")
	t.Setenv("LEARN_MONGO_URL", "mongodb://db:27017")
	t.Setenv("LEARN_DATABASE_MIGRATE", "false")
	t.Setenv("LEARN_CACHE_DRIVER", "redis")
	t.Setenv("LEARN_STATS_TTL", "2m")
	t.Setenv("LEARN_TASKS_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Store.Driver != StoreMongo {
		t.Errorf("Store.Driver = %q, want mongo", cfg.Store.Driver)
	}
	if cfg.Mongo.URL != "mongodb://db:27017" {
		t.Errorf("Mongo.URL = %q, want mongodb://db:27017", cfg.Mongo.URL)
	}
	if cfg.Database.Migrate {
		t.Error("Database.Migrate = true, want false")
	}
	if cfg.Cache.Driver != CacheRedis {
		t.Errorf("Cache.Driver = %q, want redis", cfg.Cache.Driver)
	}
	if cfg.Cache.StatsTTL != 2*time.Minute {
		t.Errorf("Cache.StatsTTL = %s, want 2m", cfg.Cache.StatsTTL)
	}
	if cfg.Tasks.Workers != 8 {
		t.Errorf("Tasks.Workers = %d, want 8", cfg.Tasks.Workers)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEARN_STATS_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject an invalid LEARN_STATS_TTL")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"memory store", map[string]string{"LEARN_STORE_DRIVER": "memory"}, false},
		{"unknown store", map[string]string{"LEARN_STORE_DRIVER": "sqlite"}, true},
		{"unknown cache", map[string]string{"LEARN_CACHE_DRIVER": "memcached"}, true},
		{"zero ttl", map[string]string{"LEARN_STATS_TTL": "0s"}, true},
		{"no workers", map[string]string{"LEARN_TASKS_WORKERS": "0"}, true},
		{"no queue", map[string]string{"LEARN_TASKS_QUEUE_SIZE": "0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
