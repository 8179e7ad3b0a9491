package backend

import (
	"time"
)

// Record is the generic JSON-shaped form of an entity, used when crossing
// the sync boundary.
type Record = map[string]any

// Collection names one entity collection of the store. The value doubles as
// the remote table name.
type Collection string

const (
	CollectionJobs       Collection = "jobs"
	CollectionCustomers  Collection = "customers"
	CollectionLeads      Collection = "leads"
	CollectionInvoices   Collection = "invoices"
	CollectionEstimates  Collection = "estimates"
	CollectionExpenses   Collection = "expenses"
	CollectionPayments   Collection = "payments"
	CollectionTasks      Collection = "tasks"
	CollectionTickets    Collection = "tickets"
	CollectionServices   Collection = "services"
	CollectionStatuses   Collection = "statuses"
	CollectionSettings   Collection = "settings"
	CollectionUsers      Collection = "users"
)

// SettingsID is the sentinel id of the singleton settings record.
const SettingsID = "default"

// AllCollections lists every synced collection in push order.
var AllCollections = []Collection{
	CollectionSettings, CollectionStatuses, CollectionServices, CollectionUsers,
	CollectionCustomers, CollectionLeads, CollectionJobs, CollectionEstimates,
	CollectionInvoices, CollectionPayments, CollectionExpenses, CollectionTasks,
	CollectionTickets,
}

// RepresentativeCollections decide whether a store "has data" during sync
// initialization.
var RepresentativeCollections = []Collection{
	CollectionJobs, CollectionCustomers, CollectionStatuses, CollectionServices,
}

// Meta holds the attributes common to every record.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetID returns the record id.
func (m Meta) GetID() string { return m.ID }

func (m *Meta) meta() *Meta { return m }

// HistoryEntry is one audited status transition of a job.
type HistoryEntry struct {
	Status string    `json:"status"`
	Date   time.Time `json:"date"`
	Note   string    `json:"note,omitempty"`
}

// JobImage is a photo attached to a job at a given workflow stage.
type JobImage struct {
	ID         string    `json:"id"`
	Data       string    `json:"data"` // base64
	UploadedAt time.Time `json:"uploadedAt"`
}

// Job is a work order on a customer's vehicle.
type Job struct {
	Meta
	CustomerID    string                `json:"customerId"`
	Title         string                `json:"title"`
	Description   string                `json:"description,omitempty"`
	VehicleMake   string                `json:"vehicleMake,omitempty"`
	VehicleModel  string                `json:"vehicleModel,omitempty"`
	VehicleYear   int                   `json:"vehicleYear,omitempty"`
	VehicleColor  string                `json:"vehicleColor,omitempty"`
	LicensePlate  string                `json:"licensePlate,omitempty"`
	VIN           string                `json:"vin,omitempty"`
	ServiceIDs    []string              `json:"serviceIds,omitempty"`
	Status        string                `json:"status"`
	Priority      string                `json:"priority,omitempty"` // low, normal, high, urgent
	EstimatedCost float64               `json:"estimatedCost,omitempty"`
	ActualCost    float64               `json:"actualCost,omitempty"`
	StartDate     *time.Time            `json:"startDate,omitempty"`
	DueDate       *time.Time            `json:"dueDate,omitempty"`
	CompletedAt   *time.Time            `json:"completedAt,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	History       []HistoryEntry        `json:"history"`
	Images        map[string][]JobImage `json:"images,omitempty"`
}

// Customer is a shop customer.
type Customer struct {
	Meta
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Lead is a prospective customer.
type Lead struct {
	Meta
	Name                string     `json:"name"`
	Email               string     `json:"email,omitempty"`
	Phone               string     `json:"phone,omitempty"`
	Source              string     `json:"source,omitempty"`
	Status              string     `json:"status"` // new, contacted, qualified, converted, lost
	VehicleInterest     string     `json:"vehicleInterest,omitempty"`
	EstimatedValue      float64    `json:"estimatedValue,omitempty"`
	FollowUpDate        *time.Time `json:"followUpDate,omitempty"`
	ConvertedCustomerID string     `json:"convertedCustomerId,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

// LineItem is one billable line of an invoice or estimate.
type LineItem struct {
	Description string  `json:"description"`
	ServiceID   string  `json:"serviceId,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Amount returns quantity times unit price.
func (li LineItem) Amount() float64 { return li.Quantity * li.UnitPrice }

// Invoice bills a customer, usually for a job.
type Invoice struct {
	Meta
	InvoiceNumber string     `json:"invoiceNumber"`
	CustomerID    string     `json:"customerId"`
	JobID         string     `json:"jobId,omitempty"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	TaxRate       float64    `json:"taxRate"`
	TaxAmount     float64    `json:"taxAmount"`
	Discount      float64    `json:"discount,omitempty"`
	Total         float64    `json:"total"`
	AmountPaid    float64    `json:"amountPaid"`
	Status        string     `json:"status"` // draft, sent, paid, overdue, cancelled
	DueDate       *time.Time `json:"dueDate,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// Estimate is a quote that can be shared with a customer through its
// public token.
type Estimate struct {
	Meta
	EstimateNumber string     `json:"estimateNumber"`
	CustomerID     string     `json:"customerId"`
	JobID          string     `json:"jobId,omitempty"`
	Items          []LineItem `json:"items"`
	Subtotal       float64    `json:"subtotal"`
	TaxRate        float64    `json:"taxRate"`
	TaxAmount      float64    `json:"taxAmount"`
	Total          float64    `json:"total"`
	Status         string     `json:"status"` // draft, sent, approved, declined
	ValidUntil     *time.Time `json:"validUntil,omitempty"`
	PublicToken    string     `json:"publicToken"`
	Notes          string     `json:"notes,omitempty"`
}

// Expense is money spent by the shop.
type Expense struct {
	Meta
	Description string     `json:"description"`
	Category    string     `json:"category,omitempty"`
	Amount      float64    `json:"amount"`
	Date        *time.Time `json:"date,omitempty"`
	Vendor      string     `json:"vendor,omitempty"`
	JobID       string     `json:"jobId,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Payment is money received against an invoice.
type Payment struct {
	Meta
	InvoiceID string     `json:"invoiceId"`
	Amount    float64    `json:"amount"`
	Method    string     `json:"method,omitempty"` // cash, card, transfer
	Date      *time.Time `json:"date,omitempty"`
	Reference string     `json:"reference,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Task is an internal to-do item.
type Task struct {
	Meta
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"` // pending, in_progress, done
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	JobID       string     `json:"jobId,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Ticket is a customer support request.
type Ticket struct {
	Meta
	TicketNumber string     `json:"ticketNumber"`
	CustomerID   string     `json:"customerId,omitempty"`
	JobID        string     `json:"jobId,omitempty"`
	Subject      string     `json:"subject"`
	Description  string     `json:"description,omitempty"`
	Status       string     `json:"status"` // open, in_progress, resolved, closed
	Priority     string     `json:"priority,omitempty"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

// Service is an offering in the shop catalogue.
type Service struct {
	Meta
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Category      string  `json:"category,omitempty"`
	Price         float64 `json:"price"`
	DurationHours float64 `json:"durationHours,omitempty"`
}

// Status is one workflow stage a job moves through.
type Status struct {
	Meta
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	Order   int    `json:"order"`
	IsFinal bool   `json:"isFinal,omitempty"`
}

// Settings is the singleton shop configuration record. It also carries the
// document sequence counters.
type Settings struct {
	Meta
	BusinessName         string  `json:"businessName"`
	Email                string  `json:"email,omitempty"`
	Phone                string  `json:"phone,omitempty"`
	Address              string  `json:"address,omitempty"`
	Currency             string  `json:"currency"`
	TaxRate              float64 `json:"taxRate"`
	InvoicePrefix        string  `json:"invoicePrefix"`
	NextInvoiceNumber    int     `json:"nextInvoiceNumber"`
	EstimatePrefix       string  `json:"estimatePrefix"`
	NextEstimateNumber   int     `json:"nextEstimateNumber"`
	TicketPrefix         string  `json:"ticketPrefix"`
	NextTicketNumber     int     `json:"nextTicketNumber"`
	NotifyOnStatusChange bool    `json:"notifyOnStatusChange"`
	WhatsAppNumber       string  `json:"whatsappNumber,omitempty"`
}

// DefaultSettings returns the settings of a fresh store.
func DefaultSettings() Settings {
	return Settings{
		Meta:               Meta{ID: SettingsID},
		BusinessName:       "Dawn Customs",
		Currency:           "USD",
		InvoicePrefix:      "INV-",
		NextInvoiceNumber:  1001,
		EstimatePrefix:     "EST-",
		NextEstimateNumber: 1001,
		TicketPrefix:       "TKT-",
		NextTicketNumber:   1,
	}
}

// User is a staff account.
type User struct {
	Meta
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"` // admin, staff
	Active bool   `json:"active"`
}

// State is the complete persisted document.
type State struct {
	Version   int        `json:"version"`
	Jobs      []Job      `json:"jobs"`
	Customers []Customer `json:"customers"`
	Leads     []Lead     `json:"leads"`
	Invoices  []Invoice  `json:"invoices"`
	Estimates []Estimate `json:"estimates"`
	Expenses  []Expense  `json:"expenses"`
	Payments  []Payment  `json:"payments"`
	Tasks     []Task     `json:"tasks"`
	Tickets   []Ticket   `json:"tickets"`
	Services  []Service  `json:"services"`
	Statuses  []Status   `json:"statuses"`
	Settings  Settings   `json:"settings"`
	Users     []User     `json:"users"`
}

// NewState returns an empty document at the current schema version.
func NewState() State {
	return State{
		Version:  DocumentVersion,
		Settings: DefaultSettings(),
	}
}
