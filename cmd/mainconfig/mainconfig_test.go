package mainconfig

import (
	"context"
	"testing"

	appconfig "github.com/wolfman30/appointment-notify/internal/config"
)

func TestNeedsAWS(t *testing.T) {
	cases := []struct {
		name string
		cfg  appconfig.Config
		want bool
	}{
		{"memory everything", appconfig.Config{UseMemoryQueue: true, TenantSource: "static"}, false},
		{"sqs queue", appconfig.Config{ResumeQueueURL: "http://localhost:4566/000000000000/resume"}, true},
		{"memory queue wins over url", appconfig.Config{UseMemoryQueue: true, ResumeQueueURL: "http://q"}, false},
		{"dynamodb tenants", appconfig.Config{UseMemoryQueue: true, TenantSource: "dynamodb"}, true},
	}
	for _, tc := range cases {
		if got := NeedsAWS(&tc.cfg); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestNewAWSClientsWithEndpointOverride(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load aws config: %v", err)
	}
	if awsCfg.Region != "us-east-1" {
		t.Fatalf("unexpected region %s", awsCfg.Region)
	}
	clients := NewAWSClients(awsCfg, cfg)
	if clients.SQS == nil || clients.DynamoDB == nil {
		t.Fatalf("expected clients")
	}
	if got := clients.SQS.Options().BaseEndpoint; got == nil || *got != "http://localhost:4566" {
		t.Fatalf("expected endpoint override, got %v", got)
	}
}
