package infrastructure

import (
	"context"
	"fmt"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SecretManagerStore implements domain.SecretStore on GCP Secret Manager.
// Set adds a version to an existing secret; it never creates secrets.
type SecretManagerStore struct {
	client  *secretmanager.Client
	project string
	logger  *logger.Logger
}

func NewSecretManagerStore(ctx context.Context, project string, logger *logger.Logger) (*SecretManagerStore, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretManagerStore{client: client, project: project, logger: logger}, nil
}

func (s *SecretManagerStore) Close() error {
	return s.client.Close()
}

func (s *SecretManagerStore) Get(ctx context.Context, key string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretVersionName(s.project, key),
	})
	if err != nil {
		return "", mapSecretError(err)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (s *SecretManagerStore) Set(ctx context.Context, key, value string) error {
	_, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  secretName(s.project, key),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return mapSecretError(err)
	}

	s.logger.WithContext(ctx).WithField("secret", key).Info("Updated secret")
	return nil
}

func secretName(project, key string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", project, key)
}

func secretVersionName(project, key string) string {
	return secretName(project, key) + "/versions/latest"
}

func mapSecretError(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", domain.ErrSecretNotFound, status.Convert(err).Message())
	}
	return err
}
