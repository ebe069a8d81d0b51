package models

import "time"

// DefaultRating 신규 사용자 기본 레이팅
const DefaultRating = 1200

// User 듀얼에 필요한 사용자 정보
// Rating(ELO)과 Trophies(연습 문제 보상)는 별개의 장부다.
type User struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	Rating      int       `json:"rating" db:"rating"`
	Trophies    int       `json:"trophies" db:"trophies"`
	Wins        int       `json:"wins" db:"wins"`
	Losses      int       `json:"losses" db:"losses"`
	Draws       int       `json:"draws" db:"draws"`
	DuelsPlayed int       `json:"duelsPlayed" db:"duels_played"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
