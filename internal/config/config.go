package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database  *dbConfig
	Service   *svcConfig
	Scheduler *schedulerConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"scheduler"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address          string `envconfig:"TASK_SCHEDULER_ADDRESS" default:":8080"`
	LogLevel         string `envconfig:"TASK_SCHEDULER_LOG_LEVEL" default:"info"`
	MigrationsFolder string `envconfig:"TASK_SCHEDULER_MIGRATIONS_FOLDER" default:""`
}

// schedulerConfig carries the polling and worker-pool knobs of the execution
// engine. Poll interval is a fixed delay: a long tick pushes the next one out.
type schedulerConfig struct {
	PollInterval           time.Duration `envconfig:"TASK_SCHEDULER_POLL_INTERVAL" default:"5s"`
	CorePoolSize           int           `envconfig:"TASK_SCHEDULER_CORE_POOL_SIZE" default:"5"`
	MaxPoolSize            int           `envconfig:"TASK_SCHEDULER_MAX_POOL_SIZE" default:"10"`
	QueueCapacity          int           `envconfig:"TASK_SCHEDULER_QUEUE_CAPACITY" default:"100"`
	BatchSize              int           `envconfig:"TASK_SCHEDULER_BATCH_SIZE" default:"50"`
	ThreadNamePrefix       string        `envconfig:"TASK_SCHEDULER_THREAD_NAME_PREFIX" default:"job-worker-"`
	WaitForTasksOnShutdown bool          `envconfig:"TASK_SCHEDULER_WAIT_FOR_TASKS_ON_SHUTDOWN" default:"true"`
	AwaitTermination       time.Duration `envconfig:"TASK_SCHEDULER_AWAIT_TERMINATION" default:"60s"`
	LeaseReapAfter         time.Duration `envconfig:"TASK_SCHEDULER_LEASE_REAP_AFTER" default:"15m"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config with the envconfig defaults for the service
// and scheduler sections and an in-memory sqlite database in place of the
// postgres default. Used by tests that want a sqlite store without touching
// the environment.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: ":memory:",
		},
		Service: &svcConfig{
			Address:  ":8080",
			LogLevel: "info",
		},
		Scheduler: &schedulerConfig{
			PollInterval:           5 * time.Second,
			CorePoolSize:           5,
			MaxPoolSize:            10,
			QueueCapacity:          100,
			BatchSize:              50,
			ThreadNamePrefix:       "job-worker-",
			WaitForTasksOnShutdown: true,
			AwaitTermination:       60 * time.Second,
			LeaseReapAfter:         15 * time.Minute,
		},
	}
}
