package dto

type LoginInput struct {
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required,max=128"`
	RememberMe bool   `json:"rememberMe"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

type LoginResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	TokenType    string      `json:"tokenType"`
	ExpiresIn    int64       `json:"expiresIn"`
	User         UserSummary `json:"user"`
}
