package format

// fieldPairs maps local camelCase field names to remote snake_case column
// names. Fields missing from this table keep their name in both directions.
var fieldPairs = [][2]string{
	{"createdAt", "created_at"},
	{"updatedAt", "updated_at"},
	{"customerId", "customer_id"},
	{"jobId", "job_id"},
	{"invoiceId", "invoice_id"},
	{"serviceId", "service_id"},
	{"serviceIds", "service_ids"},
	{"vehicleMake", "vehicle_make"},
	{"vehicleModel", "vehicle_model"},
	{"vehicleYear", "vehicle_year"},
	{"vehicleColor", "vehicle_color"},
	{"licensePlate", "license_plate"},
	{"estimatedCost", "estimated_cost"},
	{"actualCost", "actual_cost"},
	{"startDate", "start_date"},
	{"dueDate", "due_date"},
	{"completedAt", "completed_at"},
	{"followUpDate", "follow_up_date"},
	{"convertedCustomerId", "converted_customer_id"},
	{"vehicleInterest", "vehicle_interest"},
	{"estimatedValue", "estimated_value"},
	{"invoiceNumber", "invoice_number"},
	{"estimateNumber", "estimate_number"},
	{"ticketNumber", "ticket_number"},
	{"taxRate", "tax_rate"},
	{"taxAmount", "tax_amount"},
	{"amountPaid", "amount_paid"},
	{"paidAt", "paid_at"},
	{"validUntil", "valid_until"},
	{"publicToken", "public_token"},
	{"unitPrice", "unit_price"},
	{"uploadedAt", "uploaded_at"},
	{"assignedTo", "assigned_to"},
	{"resolvedAt", "resolved_at"},
	{"isFinal", "is_final"},
	{"durationHours", "duration_hours"},
	{"businessName", "business_name"},
	{"invoicePrefix", "invoice_prefix"},
	{"nextInvoiceNumber", "next_invoice_number"},
	{"estimatePrefix", "estimate_prefix"},
	{"nextEstimateNumber", "next_estimate_number"},
	{"ticketPrefix", "ticket_prefix"},
	{"nextTicketNumber", "next_ticket_number"},
	{"notifyOnStatusChange", "notify_on_status_change"},
	{"whatsappNumber", "whatsapp_number"},
	{"exportedAt", "exported_at"},
}

var (
	toRemoteNames   = make(map[string]string, len(fieldPairs))
	fromRemoteNames = make(map[string]string, len(fieldPairs))
)

// dateFields are the local field names holding timestamps.
var dateFields = map[string]bool{
	"createdAt":    true,
	"updatedAt":    true,
	"startDate":    true,
	"dueDate":      true,
	"completedAt":  true,
	"followUpDate": true,
	"paidAt":       true,
	"validUntil":   true,
	"date":         true,
	"resolvedAt":   true,
	"uploadedAt":   true,
	"exportedAt":   true,
}

func init() {
	for _, p := range fieldPairs {
		toRemoteNames[p[0]] = p[1]
		fromRemoteNames[p[1]] = p[0]
	}
}

// RemoteName returns the remote column name for a local field.
func RemoteName(field string) string {
	if name, ok := toRemoteNames[field]; ok {
		return name
	}
	return field
}

// LocalName returns the local field name for a remote column.
func LocalName(column string) string {
	if name, ok := fromRemoteNames[column]; ok {
		return name
	}
	return column
}

// IsDateField reports whether the local field holds a timestamp.
func IsDateField(field string) bool {
	return dateFields[field]
}
