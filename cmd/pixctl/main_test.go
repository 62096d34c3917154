package main

import (
	"bytes"
	"pixgate/internal/memdb"
	"pixgate/models"
	"pixgate/security"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idPattern = regexp.MustCompile(`with id (\S+)`)

type harness struct {
	db        *memdb.DB
	encryptor *security.Encryptor
}

func newHarness(t *testing.T) *harness {
	key, err := security.GenerateKeyBase64()
	require.NoError(t, err)
	encryptor, err := security.NewEncryptorFromBase64(key)
	require.NoError(t, err)
	return &harness{db: memdb.New(), encryptor: encryptor}
}

func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	a := &app{db: h.db, encryptor: h.encryptor, out: &out, now: time.Now}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	out, err := h.run(args...)
	require.NoError(t, err, out)
	return out
}

func createdId(t *testing.T, out string) string {
	match := idPattern.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	return match[1]
}

func TestProviderAddAndList(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "provider", "add", "BB", "--name", "Banco do Brasil", "--ispb", "00000000", "--priority", "1")

	provider, err := h.db.GetProviderByCode("bb")
	require.NoError(t, err)
	assert.Equal(t, "Banco do Brasil", provider.Name)
	assert.Equal(t, 1, provider.Priority)
	assert.True(t, provider.Active)
	assert.Equal(t, models.HealthUnknown, provider.HealthStatus)

	_, err = h.run("provider", "add", "bb")
	assert.Error(t, err)
	_, err = h.run("provider", "add", "inter", "--ispb", "123")
	assert.Error(t, err)

	out := h.mustRun(t, "provider", "list")
	assert.Contains(t, out, "Banco do Brasil")
	assert.Contains(t, out, "never")

	require.NoError(t, h.db.UpdateProviderHealth("bb", models.HealthHealthy, time.Now().Add(-5*time.Minute)))
	out = h.mustRun(t, "provider", "list")
	assert.Contains(t, out, "5 minutes ago")
}

func TestMerchantAttachProviderEncryptsCredentials(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "provider", "add", "sandbox")
	merchantId := createdId(t, h.mustRun(t, "merchant", "add", "Loja Azul", "--document", "52998224725", "--allow-ip", "10.0.0.1"))

	h.mustRun(t, "merchant", "attach-provider", merchantId, "sandbox",
		"--client-id", "client-1", "--client-secret", "very-secret",
		"--pix-key", "loja@example.com", "--pix-key-type", "email")

	accounts, err := h.db.GetMerchantProviders(merchantId)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	account := accounts[0]
	assert.Equal(t, "sandbox", account.ProviderCode)
	assert.NotEqual(t, "very-secret", account.ClientSecret)
	secret, err := h.encryptor.Decrypt(account.ClientSecret)
	require.NoError(t, err)
	assert.Equal(t, "very-secret", secret)
	clientId, err := h.encryptor.Decrypt(account.ClientId)
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientId)

	out := h.mustRun(t, "merchant", "list")
	assert.Contains(t, out, "Loja Azul")
	assert.Contains(t, out, "sandbox")

	_, err = h.run("merchant", "attach-provider", merchantId, "sandbox", "--client-id", "x")
	assert.Error(t, err)
	_, err = h.run("merchant", "attach-provider", merchantId, "unknown", "--client-id", "x", "--client-secret", "y")
	assert.Error(t, err)
}

func TestMerchantAddRejectsBadDocument(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("merchant", "add", "Loja", "--document", "12345678900")
	assert.Error(t, err)
}

func TestUserAdd(t *testing.T) {
	h := newHarness(t)
	merchantId := createdId(t, h.mustRun(t, "merchant", "add", "Loja"))

	h.mustRun(t, "user", "add", "Ana@Loja.com", "--merchant", merchantId, "--password", "s3cret-pass")
	user, err := h.db.GetUserByEmail("ana@loja.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMerchant, user.Role)
	assert.True(t, security.CheckPassword(user.Password, "s3cret-pass"))

	out := h.mustRun(t, "user", "add", "root@pixgate.com", "--role", "admin")
	assert.Contains(t, out, "password: ")

	_, err = h.run("user", "add", "ana@loja.com", "--merchant", merchantId)
	assert.Error(t, err)
	_, err = h.run("user", "add", "bob@loja.com")
	assert.Error(t, err)
	_, err = h.run("user", "add", "bob@loja.com", "--role", "owner")
	assert.Error(t, err)
}

func TestApiKeyCreate(t *testing.T) {
	h := newHarness(t)
	merchantId := createdId(t, h.mustRun(t, "merchant", "add", "Loja"))

	out := h.mustRun(t, "apikey", "create", merchantId, "--name", "erp", "--valid-for", "720h")
	var plain string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "key: ") {
			plain = strings.TrimPrefix(line, "key: ")
		}
	}
	require.True(t, security.IsApiKey(plain), out)

	keys, err := h.db.GetApiKeysByPrefix(security.ApiKeyLookupPrefix(plain))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, security.HashToken(plain), keys[0].Hash)
	assert.NotNil(t, keys[0].ExpiresAt)

	_, err = h.run("apikey", "create", "missing")
	assert.Error(t, err)
}

func TestKeysGenerate(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(t, "keys", "generate")
	assert.Contains(t, out, "encryption:")
	assert.Contains(t, out, "secret:")
}
