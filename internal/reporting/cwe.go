package reporting

import "fmt"

// CWEEntry holds display details for one weakness identifier.
type CWEEntry struct {
	ID          string
	Name        string
	Description string
}

// CWEProvider retrieves CWE information for report enrichment.
type CWEProvider interface {
	GetCWE(id string) (*CWEEntry, error)
}

// InMemoryCWEProvider serves the identifiers the sink catalog can produce
// without touching the network.
type InMemoryCWEProvider struct {
	data map[string]CWEEntry
}

func NewInMemoryCWEProvider() *InMemoryCWEProvider {
	data := map[string]CWEEntry{
		"CWE-22":   {ID: "CWE-22", Name: "Improper Limitation of a Pathname to a Restricted Directory ('Path Traversal')", Description: "The product uses external input to construct a pathname without neutralizing sequences that resolve outside the intended directory."},
		"CWE-78":   {ID: "CWE-78", Name: "Improper Neutralization of Special Elements used in an OS Command ('OS Command Injection')", Description: "The product constructs an OS command using externally-influenced input without neutralizing special elements."},
		"CWE-79":   {ID: "CWE-79", Name: "Improper Neutralization of Input During Web Page Generation ('Cross-site Scripting')", Description: "The product does not neutralize user-controllable input before placing it in output served as a web page."},
		"CWE-89":   {ID: "CWE-89", Name: "Improper Neutralization of Special Elements used in an SQL Command ('SQL Injection')", Description: "The product constructs an SQL command using externally-influenced input without neutralizing special elements."},
		"CWE-90":   {ID: "CWE-90", Name: "Improper Neutralization of Special Elements used in an LDAP Query ('LDAP Injection')", Description: "The product constructs an LDAP query using externally-influenced input without neutralizing special elements."},
		"CWE-95":   {ID: "CWE-95", Name: "Improper Neutralization of Directives in Dynamically Evaluated Code ('Eval Injection')", Description: "The product receives input and evaluates it as code without neutralizing code syntax."},
		"CWE-347":  {ID: "CWE-347", Name: "Improper Verification of Cryptographic Signature", Description: "The product does not verify, or incorrectly verifies, the cryptographic signature of data such as an authentication token."},
		"CWE-502":  {ID: "CWE-502", Name: "Deserialization of Untrusted Data", Description: "The product deserializes untrusted data without sufficiently verifying that the resulting data will be valid."},
		"CWE-611":  {ID: "CWE-611", Name: "Improper Restriction of XML External Entity Reference", Description: "The product processes an XML document that can contain XML entities with URIs resolving outside the intended control sphere."},
		"CWE-1336": {ID: "CWE-1336", Name: "Improper Neutralization of Special Elements Used in a Template Engine", Description: "The product uses externally-influenced input as part of a template processed by a template engine."},
	}
	return &InMemoryCWEProvider{data: data}
}

// GetCWE returns a generic entry for unknown identifiers so enrichment never
// fails the run.
func (p *InMemoryCWEProvider) GetCWE(id string) (*CWEEntry, error) {
	entry, ok := p.data[id]
	if !ok {
		return &CWEEntry{ID: id, Name: fmt.Sprintf("%s (Details Not Found)", id), Description: "Details for this CWE ID are not available in the local database."}, nil
	}
	return &entry, nil
}
