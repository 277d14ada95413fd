package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	DataDir           string        `mapstructure:"data_dir"`
	DownloadDir       string        `mapstructure:"download_dir"`
	Port              int           `mapstructure:"port"`
	ChunkSize         int64         `mapstructure:"chunk_size"`
	UploadRetries     int           `mapstructure:"upload_retries"`
	UploadRetryDelay  time.Duration `mapstructure:"upload_retry_delay"`
	InterPartDelay    time.Duration `mapstructure:"inter_part_delay"`
	DownloadWorkers   int           `mapstructure:"download_workers"`
	DownloadRetries   int           `mapstructure:"download_retries"`
	DownloadBaseDelay time.Duration `mapstructure:"download_base_delay"`
	PutTimeout        time.Duration `mapstructure:"put_timeout"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	Transport         string        `mapstructure:"transport"`
	TelegramAPIBase   string        `mapstructure:"telegram_api_base"`
	MinioEndpoint     string        `mapstructure:"minio_endpoint"`
	MinioBucket       string        `mapstructure:"minio_bucket"`
	MinioAccessKey    string        `mapstructure:"minio_access_key"`
	MinioSecretKey    string        `mapstructure:"minio_secret_key"`
	MinioUseSSL       bool          `mapstructure:"minio_use_ssl"`
}

var Config *AppConfig

func LoadConfig(path string) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("download_dir", "./downloads")
	viper.SetDefault("port", 8080)
	viper.SetDefault("chunk_size", int64(19*1024*1024))
	viper.SetDefault("upload_retries", 10)
	viper.SetDefault("upload_retry_delay", 5*time.Second)
	viper.SetDefault("inter_part_delay", 1*time.Second)
	viper.SetDefault("download_workers", 35)
	viper.SetDefault("download_retries", 5)
	viper.SetDefault("download_base_delay", 2*time.Second)
	viper.SetDefault("put_timeout", 90*time.Second)
	viper.SetDefault("fetch_timeout", 60*time.Second)
	viper.SetDefault("transport", "telegram")
	viper.SetDefault("telegram_api_base", "https://api.telegram.org")
	viper.SetDefault("minio_endpoint", "localhost:9000")
	viper.SetDefault("minio_bucket", "tgvault-parts")
	viper.SetDefault("minio_use_ssl", false)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("⚠️ Could not read config file, using defaults: %v", err)
	}

	var appConfig AppConfig
	if err := viper.Unmarshal(&appConfig); err != nil {
		log.Fatalf("❌ Unable to decode config into struct: %v", err)
	}

	Config = &appConfig

	fmt.Println("✅ Configuration loaded successfully.")
}
