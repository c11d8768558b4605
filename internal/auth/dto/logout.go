package dto

type LogoutInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	RevokeAll    bool   `json:"revokeAll"`
}
