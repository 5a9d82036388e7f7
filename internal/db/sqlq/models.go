package sqlq

type Booking struct {
	ID          int64  `json:"id"`
	CourtID     int64  `json:"court_id"`
	UserID      int64  `json:"user_id"`
	BookingDate string `json:"booking_date"`
	StartTime   int64  `json:"start_time"`
	EndTime     int64  `json:"end_time"`
	Status      string `json:"status"`
	TotalPrice  int64  `json:"total_price"`
}

type Chat struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Message    string `json:"message"`
	SentAt     int64  `json:"sent_at"`
	IsRead     bool   `json:"is_read"`
}

type Court struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	ImageUrl     string `json:"image_url"`
	PricePerHour int64  `json:"price_per_hour"`
	OwnerID      int64  `json:"owner_id"`
	Amenities    string `json:"amenities"`
	RatingSum    int64  `json:"rating_sum"`
	RatingCount  int64  `json:"rating_count"`
}

type PlayerRequest struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Location    string `json:"location"`
	RequestDate string `json:"request_date"`
	TimeRange   string `json:"time_range"`
	Message     string `json:"message"`
	Status      string `json:"status"`
}

type Review struct {
	ID        int64  `json:"id"`
	CourtID   int64  `json:"court_id"`
	UserID    int64  `json:"user_id"`
	Rating    int64  `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt int64  `json:"created_at"`
}

type TimeSlot struct {
	ID        int64  `json:"id"`
	CourtID   int64  `json:"court_id"`
	SlotDate  string `json:"slot_date"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	IsBooked  bool   `json:"is_booked"`
}

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Bio          string `json:"bio"`
	Location     string `json:"location"`
	SkillLevel   string `json:"skill_level"`
	IsCourtOwner bool   `json:"is_court_owner"`
	AvatarUrl    string `json:"avatar_url"`
	Phone        string `json:"phone"`
}
