package models

// OAuthToken is out-of-band credential material a worker reads to call a third-party
// integration on the user's behalf. Never logged in full; callers should log only Provider.
type OAuthToken struct {
	Provider     string `firestore:"provider"`
	AccessToken  string `firestore:"accessToken"`
	RefreshToken string `firestore:"refreshToken,omitempty"`
	ExpiresAt    *Time  `firestore:"expiresAt,omitempty"`
}

// AIConfig is an org's model-provider configuration, read by workers that invoke an LLM as
// part of their step content. The controller never interprets these values.
type AIConfig struct {
	Provider string            `firestore:"provider"`
	Model    string            `firestore:"model"`
	APIKey   string            `firestore:"apiKey"`
	Extra    map[string]string `firestore:"extra,omitempty"`
}
