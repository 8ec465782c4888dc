package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket string        `yaml:"minio_bucket"`
	App         App           `yaml:"app"`
	DB          *sql.DB       `yaml:"db"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	Storage     *minio.Client `yaml:"storage"`
	Server      Server        `yaml:"server"`
	Ingest      Ingest        `yaml:"ingest"`
	Session     Session       `yaml:"session"`
	AI          AI            `yaml:"ai"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

type Ingest struct {
	SpoolDir       string `yaml:"spool_dir"`
	MaxImageBytes  int64  `yaml:"max_image_bytes"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type Session struct {
	// ImageStaleness is the maximum age of the most recent active
	// session still eligible to claim an incoming image.
	ImageStaleness time.Duration `yaml:"image_staleness"`
}

type AI struct {
	OpenAIKey           string        `yaml:"openai_api_key"`
	GoogleKey           string        `yaml:"google_api_key"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	TranscriptCharLimit int           `yaml:"transcript_char_limit"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("ingest.spool_dir", "spool")
	viper.SetDefault("ingest.max_image_bytes", 10*1024*1024)
	viper.SetDefault("ingest.max_upload_bytes", 25*1024*1024)
	viper.SetDefault("session.image_staleness", "5m")
	viper.SetDefault("ai.request_timeout", "120s")
	viper.SetDefault("ai.transcript_char_limit", 30000)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Ingest: Ingest{
			SpoolDir:       viper.GetString("ingest.spool_dir"),
			MaxImageBytes:  viper.GetInt64("ingest.max_image_bytes"),
			MaxUploadBytes: viper.GetInt64("ingest.max_upload_bytes"),
		},
		Session: Session{
			ImageStaleness: viper.GetDuration("session.image_staleness"),
		},
		AI: AI{
			OpenAIKey:           viper.GetString("ai.openai_api_key"),
			GoogleKey:           viper.GetString("ai.google_api_key"),
			RequestTimeout:      viper.GetDuration("ai.request_timeout"),
			TranscriptCharLimit: viper.GetInt("ai.transcript_char_limit"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
