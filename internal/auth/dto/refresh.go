package dto

type RefreshInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IPAddress    string `json:"-"`
	UserAgent    string `json:"-"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}
