// Package marketo provides a client for the Marketo SOAP lead API (mktows).
//
// A Client signs every request with the Marketo AuthenticationHeader and
// exposes lead operations through its Leads service:
//
//	client, err := marketo.NewClient(marketo.Options{
//	    UserID:        "bigcorp1_461839624B16E06BA2D663",
//	    EncryptionKey: "899756834129871744AAEE88DDCC77CDEEDEC1AAAD66",
//	    Subdomain:     "123-ABC-456",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	lead, err := client.Leads.GetByEmail(ctx, "jane@example.com")
//
// Leads carry a dynamic attribute list. Attribute values are kept as strings
// together with the Marketo attrType reported by the service.
//
// Errors can be inspected with errors.Is and errors.As:
//
//	if errors.Is(err, marketo.ErrLeadNotFound) {
//	    // no lead for that key
//	}
//	var fault *marketo.Fault
//	if errors.As(err, &fault) {
//	    // fault.Detail.Code holds the Marketo error code
//	}
package marketo
