package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/appointment-notify/internal/config"
	"github.com/wolfman30/appointment-notify/pkg/logging"
)

// LoadEnv reads a .env file when present so local runs match the container
// environment. Variables already set in the process win.
func LoadEnv(logger *logging.Logger, files ...string) {
	if err := godotenv.Load(files...); err != nil && logger != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
}

// AWSClients are the AWS services the binaries talk to.
type AWSClients struct {
	SQS      *sqs.Client
	DynamoDB *dynamodb.Client
}

// NeedsAWS reports whether the configuration selects any AWS-backed component.
func NeedsAWS(cfg *appconfig.Config) bool {
	return (!cfg.UseMemoryQueue && strings.TrimSpace(cfg.ResumeQueueURL) != "") || cfg.TenantSource == "dynamodb"
}

// LoadAWSConfig centralizes AWS SDK initialization so every binary shares the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, loaders...)
}

// NewAWSClients builds SQS and DynamoDB clients, pointing both at
// AWS_ENDPOINT_OVERRIDE when set (LocalStack).
func NewAWSClients(awsCfg aws.Config, cfg *appconfig.Config) AWSClients {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return AWSClients{
		SQS: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
		DynamoDB: dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		}),
	}
}
