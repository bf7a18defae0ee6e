package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"

	"course-admin-service/internal/config"
	"course-admin-service/internal/model"
	"course-admin-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Manager envelope-encrypts sensitive fields (course chatbot security
// keys). With KMS enabled the data key is wrapped by the configured CMK;
// otherwise a process-local master key wraps it, which is acceptable for
// development only.
type Manager struct {
	kmsClient *kms.Client
	config    *config.Config
	localKey  []byte
	dekCache  sync.Map // encrypted DEK -> plaintext DEK
}

func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{config: cfg}

	if cfg.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.KMS.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		m.kmsClient = kms.NewFromConfig(awsCfg)
		util.Info("Encryption manager initialized with KMS",
			zap.String("key_id", cfg.KMS.KeyID),
			zap.String("region", cfg.KMS.Region))
		return m, nil
	}

	m.localKey = make([]byte, 32)
	if _, err := rand.Read(m.localKey); err != nil {
		return nil, fmt.Errorf("failed to generate local master key: %w", err)
	}
	util.Warn("Encryption manager using process-local master key - encrypted values will not survive a restart")
	return m, nil
}

// EncryptField encrypts a plaintext with a fresh data key and returns the
// stored form.
func (m *Manager) EncryptField(ctx context.Context, plaintext string) (model.Encrypted, error) {
	dekPlain, dekWrapped, keyID, err := m.generateDataKey(ctx)
	if err != nil {
		return model.Encrypted{}, err
	}

	block, err := aes.NewCipher(dekPlain)
	if err != nil {
		return model.Encrypted{}, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return model.Encrypted{}, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return model.Encrypted{}, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	encrypted := model.Encrypted{
		Ciphertext:   base64.StdEncoding.EncodeToString(sealed),
		EncryptedDEK: base64.StdEncoding.EncodeToString(dekWrapped),
		KeyID:        keyID,
	}
	m.dekCache.Store(encrypted.EncryptedDEK, dekPlain)
	return encrypted, nil
}

// DecryptField reverses EncryptField.
func (m *Manager) DecryptField(ctx context.Context, data model.Encrypted) (string, error) {
	dek, err := m.unwrapDataKey(ctx, data.EncryptedDEK)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(data.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	block, err := aes.NewCipher(dek)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	if len(sealed) < gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func (m *Manager) generateDataKey(ctx context.Context) (plain, wrapped []byte, keyID string, err error) {
	if m.kmsClient != nil {
		result, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(m.config.KMS.KeyID),
			KeySpec: types.DataKeySpecAes256,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to generate data key: %w", err)
		}
		return result.Plaintext, result.CiphertextBlob, m.config.KMS.KeyID, nil
	}

	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	wrapped, err = m.wrapLocal(dek)
	if err != nil {
		return nil, nil, "", err
	}
	return dek, wrapped, "local", nil
}

func (m *Manager) unwrapDataKey(ctx context.Context, encodedDEK string) ([]byte, error) {
	if cached, ok := m.dekCache.Load(encodedDEK); ok {
		return cached.([]byte), nil
	}

	wrapped, err := base64.StdEncoding.DecodeString(encodedDEK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	var dek []byte
	if m.kmsClient != nil {
		result, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: wrapped,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt data key: %w", err)
		}
		dek = result.Plaintext
	} else {
		dek, err = m.unwrapLocal(wrapped)
		if err != nil {
			return nil, err
		}
	}

	m.dekCache.Store(encodedDEK, dek)
	return dek, nil
}

func (m *Manager) wrapLocal(dek []byte) ([]byte, error) {
	block, err := aes.NewCipher(m.localKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return gcm.Seal(nonce, nonce, dek, nil), nil
}

func (m *Manager) unwrapLocal(wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(m.localKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(wrapped) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := wrapped[:gcm.NonceSize()], wrapped[gcm.NonceSize():]
	dek, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return dek, nil
}

// ClearCache drops cached data keys on shutdown.
func (m *Manager) ClearCache() {
	m.dekCache.Range(func(key, _ interface{}) bool {
		m.dekCache.Delete(key)
		return true
	})
}
