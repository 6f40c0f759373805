package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Environment variables holding secrets.
const (
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvElevenLabsKey  = "ELEVENLABS_API_KEY"
	EnvAzureSpeechKey = "AZURE_SPEECH_KEY"
	EnvAzureRegion    = "AZURE_SPEECH_REGION"
	EnvGoogleKey      = "GOOGLE_API_KEY"
	EnvTwitchToken    = "TWITCH_ACCESS_TOKEN"
)

// Tokens holds provider credentials.
type Tokens struct {
	OpenAI      string `json:"openai_api_key"`
	ElevenLabs  string `json:"elevenlabs_api_key"`
	AzureSpeech string `json:"azure_speech_key"`
	AzureRegion string `json:"azure_speech_region"`
	Google      string `json:"google_api_key"`
	Twitch      string `json:"twitch_access_token"`
}

// LoadTokens reads an optional JSON token file and then applies environment
// overrides. A missing file is not an error.
func LoadTokens(path string) (Tokens, error) {
	var t Tokens
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return t, fmt.Errorf("config: read tokens: %w", err)
		default:
			if err := json.Unmarshal(data, &t); err != nil {
				return t, fmt.Errorf("config: parse tokens: %w", err)
			}
		}
	}
	t.LoadEnv()
	return t, nil
}

// LoadEnv overrides tokens with any set environment variables.
func (t *Tokens) LoadEnv() {
	override(&t.OpenAI, EnvOpenAIKey)
	override(&t.ElevenLabs, EnvElevenLabsKey)
	override(&t.AzureSpeech, EnvAzureSpeechKey)
	override(&t.AzureRegion, EnvAzureRegion)
	override(&t.Google, EnvGoogleKey)
	override(&t.Twitch, EnvTwitchToken)
}

func override(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
