// Package secrets resolves sensitive configuration values from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Provider fetches a raw secret string by ID.
type Provider interface {
	GetSecretString(ctx context.Context, id string) (string, error)
}

// secretsManagerAPI is the subset of the SDK client used here.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider implements Provider using AWS Secrets Manager.
type AWSProvider struct {
	client secretsManagerAPI
}

// NewAWSProvider loads the default AWS credential chain for region.
func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// GetSecretString returns the SecretString of id.
func (p *AWSProvider) GetSecretString(ctx context.Context, id string) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret [%s]: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret [%s] has no string value", id)
	}
	return *out.SecretString, nil
}

// Resolve returns the value of a secret. Secrets stored as a JSON object
// ({"value": "..."} or {"<field>": "..."}) are unwrapped using field; plain
// strings are returned as-is.
func Resolve(ctx context.Context, p Provider, id, field string) (string, error) {
	raw, err := p.GetSecretString(ctx, id)
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return "", fmt.Errorf("invalid secret format for [%s]: %w", id, err)
	}
	if v, ok := m[field]; ok && v != "" {
		return v, nil
	}
	if v, ok := m["value"]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret [%s] has no field %q", id, field)
}
