package nodes

import "github.com/rendis/ruleflow/pkg/schema"

// eventCatalog is the fixed set of fields every inbound event may carry.
var eventCatalog = []schema.VariableDescriptor{
	{Path: "amount", Label: "Amount", Type: schema.FieldNumber, ExampleValue: schema.Number(15000)},
	{Path: "currency", Label: "Currency", Type: schema.FieldSelect, ExampleValue: schema.String("BTC")},
	{Path: "country", Label: "Country", Type: schema.FieldSelect, ExampleValue: schema.String("RU")},
	{Path: "kycStatus", Label: "KYC status", Type: schema.FieldSelect, ExampleValue: schema.String("PENDING")},
	{Path: "userId", Label: "User ID", Type: schema.FieldString, ExampleValue: schema.String("usr_1024")},
	{Path: "email", Label: "Email", Type: schema.FieldString, ExampleValue: schema.String("user@example.com")},
	{Path: "orderId", Label: "Order ID", Type: schema.FieldString, ExampleValue: schema.String("ord_5531")},
	{Path: "orderCount", Label: "Order count", Type: schema.FieldNumber, ExampleValue: schema.Number(12)},
	{Path: "totalVolume", Label: "Total volume", Type: schema.FieldNumber, ExampleValue: schema.Number(250000)},
	{Path: "createdAt", Label: "Created at", Type: schema.FieldString, ExampleValue: schema.String("2026-01-15T10:30:00Z")},
}

var eventFieldTypes = func() schema.FieldTypes {
	m := make(schema.FieldTypes, len(eventCatalog))
	for _, d := range eventCatalog {
		m[d.Path] = d.Type
	}
	return m
}()

// EventFields returns the event catalog in display order.
func EventFields() []schema.VariableDescriptor {
	out := make([]schema.VariableDescriptor, len(eventCatalog))
	copy(out, eventCatalog)
	return out
}

// EventFieldTypes returns the event catalog as a field type map.
func EventFieldTypes() schema.FieldTypes {
	out := make(schema.FieldTypes, len(eventFieldTypes))
	for k, v := range eventFieldTypes {
		out[k] = v
	}
	return out
}

// ExampleEvent returns an event payload built from catalog example values.
func ExampleEvent() map[string]any {
	out := make(map[string]any, len(eventCatalog))
	for _, d := range eventCatalog {
		out[d.Path] = d.ExampleValue.Any()
	}
	return out
}
