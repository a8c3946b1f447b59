package model

import "time"

// Appointment statuses. Scheduled and confirmed are both "booked, awaiting
// session" states; they differ only in whether a payment gated the booking.
const (
	StatusPendingPayment = "pending_payment"
	StatusScheduled      = "scheduled"
	StatusConfirmed      = "confirmed"
	StatusInProgress     = "in_progress"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

const (
	ModeVirtual  = "virtual"
	ModeInPerson = "in_person"
)

const (
	KindInHouse = "in_house"
	KindExpert  = "expert"
)

const (
	SlotOpen   = "open"
	SlotBooked = "booked"
)

const (
	IntentCreated   = "created"
	IntentSucceeded = "succeeded"
	IntentFailed    = "failed"
)

type Nutritionist struct {
	ID                string
	FullName          string
	Kind              string
	Specialization    string
	HourlyRateCents   *int64
	AcceptingPatients bool
	CreatedAt         time.Time
}

type Slot struct {
	ID             string
	NutritionistID string
	Day            time.Time
	StartTime      time.Time
	EndTime        time.Time
	Status         string
	CreatedAt      time.Time
}

type Appointment struct {
	ID             string
	PatientID      string
	NutritionistID string
	Day            time.Time
	StartTime      time.Time
	EndTime        time.Time
	Mode           string
	Notes          string
	Status         string
	SlotID         *string
	MeetingURL     string
	ActualStart    *time.Time
	ActualEnd      *time.Time
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
}

type PaymentIntent struct {
	ID            string
	AppointmentID string
	AmountCents   int64
	Currency      string
	SessionToken  string
	OrderID       string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
