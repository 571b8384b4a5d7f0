package main

import (
	"testing"

	"github.com/oukeidos/imagine/internal/auth"
)

type keyStubs struct {
	promptCalls int
	keyCalls    int
	envCalls    int
}

func withKeyStubs(t *testing.T, terminal bool, promptVal string, keychainVal string, envVal string) (*keyStubs, func()) {
	t.Helper()
	stubs := &keyStubs{}

	prevIsTerminal := isTerminal
	prevPrompt := promptForKey
	prevGetKey := getKey
	prevGetEnv := getEnvKey

	isTerminal = func(_ int) bool { return terminal }
	promptForKey = func(_ string) (string, error) {
		stubs.promptCalls++
		return promptVal, nil
	}
	getKey = func(_ bool) (string, string) {
		stubs.keyCalls++
		if keychainVal == "" {
			return "", ""
		}
		return keychainVal, auth.SourceKeychain
	}
	getEnvKey = func() (string, bool) {
		stubs.envCalls++
		if envVal == "" {
			return "", false
		}
		return envVal, true
	}

	restore := func() {
		isTerminal = prevIsTerminal
		promptForKey = prevPrompt
		getKey = prevGetKey
		getEnvKey = prevGetEnv
	}

	return stubs, restore
}

func TestResolvePublicKey_KeychainFirst(t *testing.T) {
	stubs, restore := withKeyStubs(t, true, "", "keychain-key", "env-key")
	defer restore()

	key, source, err := resolvePublicKey(true, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "keychain-key" || source != auth.SourceKeychain {
		t.Fatalf("expected keychain key/source, got key=%q source=%q", key, source)
	}
	if stubs.envCalls != 0 || stubs.promptCalls != 0 {
		t.Fatalf("expected no env/prompt calls, got env=%d prompt=%d", stubs.envCalls, stubs.promptCalls)
	}
}

func TestResolvePublicKey_EnvWhenAllowed(t *testing.T) {
	_, restore := withKeyStubs(t, false, "", "", "env-key")
	defer restore()

	key, source, err := resolvePublicKey(true, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "env-key" || source != auth.SourceEnv {
		t.Fatalf("expected env key/source, got key=%q source=%q", key, source)
	}
}

func TestResolvePublicKey_EnvIgnoredByDefault(t *testing.T) {
	stubs, restore := withKeyStubs(t, false, "", "", "env-key")
	defer restore()

	key, source, err := resolvePublicKey(false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "" || source != auth.SourceNone {
		t.Fatalf("expected public mode, got key=%q source=%q", key, source)
	}
	if stubs.envCalls != 0 {
		t.Fatalf("expected no env calls, got envCalls=%d", stubs.envCalls)
	}
}

func TestResolvePublicKey_NonInteractiveNeverPrompts(t *testing.T) {
	stubs, restore := withKeyStubs(t, false, "prompt-key", "", "")
	defer restore()

	if key, _, err := resolvePublicKey(false, false); err != nil || key != "" {
		t.Fatalf("got key=%q err=%v", key, err)
	}
	if stubs.promptCalls != 0 {
		t.Fatalf("expected no prompt, got promptCalls=%d", stubs.promptCalls)
	}
}

func TestResolvePublicKey_EnvOnly(t *testing.T) {
	stubs, restore := withKeyStubs(t, true, "prompt-key", "keychain-key", "env-key")
	defer restore()

	key, source, err := resolvePublicKey(false, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "env-key" || source != auth.SourceEnv {
		t.Fatalf("expected env key/source, got key=%q source=%q", key, source)
	}
	if stubs.promptCalls != 0 || stubs.keyCalls != 0 {
		t.Fatalf("expected no prompt/keychain calls, got promptCalls=%d keyCalls=%d", stubs.promptCalls, stubs.keyCalls)
	}
}

func TestResolvePublicKey_EnvOnlyMissingError(t *testing.T) {
	_, restore := withKeyStubs(t, false, "", "keychain-key", "")
	defer restore()

	if _, _, err := resolvePublicKey(false, true); err == nil {
		t.Fatalf("expected error")
	}
}

func TestResolvePublicKey_PromptFallback(t *testing.T) {
	stubs, restore := withKeyStubs(t, true, "  prompt-key ", "", "")
	defer restore()

	key, source, err := resolvePublicKey(false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "prompt-key" || source != auth.SourcePrompt {
		t.Fatalf("expected prompt key/source, got key=%q source=%q", key, source)
	}
	if stubs.keyCalls == 0 {
		t.Fatalf("expected keychain lookup before prompt")
	}
}
