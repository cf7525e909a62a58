// Package catalog holds the static, versioned tables mapping qualified call
// patterns to taint sources, security sinks, and sanitizers. Matching is by
// dotted name, independent of the source language that produced the call;
// supporting a new ecosystem means adding entries, not new control flow.
package catalog

import "strings"

// Version identifies the built-in table revision, surfaced in reports.
const Version = "2026.08"

// Source is the kind of origin untrusted data can have.
type Source uint8

const (
	SourceNone Source = iota
	SourceUserInput
	SourceEnvironment
	SourceFileContent
	SourceNetwork
)

func (s Source) String() string {
	switch s {
	case SourceUserInput:
		return "user-input"
	case SourceEnvironment:
		return "environment"
	case SourceFileContent:
		return "file-content"
	case SourceNetwork:
		return "network"
	}
	return "none"
}

// Sink is the kind of dangerous operation untrusted data can reach.
type Sink uint8

const (
	SinkNone Sink = iota
	SinkSQLExecution
	SinkShellExecution
	SinkPathAccess
	SinkTemplateRender
	SinkXMLParse
	SinkLDAPBind
	SinkDeserialization
	SinkCodeEval
	SinkMarkupInjection
	SinkTokenValidation
)

// AllSinks enumerates every sink category; order is stable.
var AllSinks = []Sink{
	SinkSQLExecution, SinkShellExecution, SinkPathAccess, SinkTemplateRender,
	SinkXMLParse, SinkLDAPBind, SinkDeserialization, SinkCodeEval,
	SinkMarkupInjection, SinkTokenValidation,
}

func (s Sink) String() string {
	switch s {
	case SinkSQLExecution:
		return "sql-execution"
	case SinkShellExecution:
		return "shell-execution"
	case SinkPathAccess:
		return "path-access"
	case SinkTemplateRender:
		return "template-render"
	case SinkXMLParse:
		return "xml-parse"
	case SinkLDAPBind:
		return "ldap-bind"
	case SinkDeserialization:
		return "deserialization"
	case SinkCodeEval:
		return "code-eval"
	case SinkMarkupInjection:
		return "markup-injection"
	case SinkTokenValidation:
		return "token-validation"
	}
	return "none"
}

// CWE returns the single weakness identifier a sink category maps to.
func (s Sink) CWE() string {
	switch s {
	case SinkSQLExecution:
		return "CWE-89"
	case SinkShellExecution:
		return "CWE-78"
	case SinkPathAccess:
		return "CWE-22"
	case SinkTemplateRender:
		return "CWE-1336"
	case SinkXMLParse:
		return "CWE-611"
	case SinkLDAPBind:
		return "CWE-90"
	case SinkDeserialization:
		return "CWE-502"
	case SinkCodeEval:
		return "CWE-95"
	case SinkMarkupInjection:
		return "CWE-79"
	case SinkTokenValidation:
		return "CWE-347"
	}
	return ""
}

// Severity is the base impact rating of a sink category before confidence
// adjustment.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// BaseSeverity returns the severity of a sink hit at full confidence.
func (s Sink) BaseSeverity() Severity {
	switch s {
	case SinkCodeEval, SinkShellExecution, SinkDeserialization:
		return SeverityCritical
	case SinkSQLExecution, SinkTemplateRender, SinkLDAPBind:
		return SeverityHigh
	case SinkPathAccess, SinkXMLParse, SinkMarkupInjection, SinkTokenValidation:
		return SeverityMedium
	}
	return SeverityLow
}

// SinkEntry is the table value for a sink pattern. TaintedArgs lists the
// argument indices that must be clean; nil means every argument is sensitive.
type SinkEntry struct {
	Sink        Sink
	TaintedArgs []int
}

// SanitizerEntry is the table value for a sanitizer pattern. Clears lists the
// sink categories the sanitizer neutralizes; nil means all of them.
type SanitizerEntry struct {
	Clears []Sink
}

// ClearsSet expands the entry into a set over sink categories.
func (e SanitizerEntry) ClearsSet() map[Sink]bool {
	out := make(map[Sink]bool, len(AllSinks))
	if e.Clears == nil {
		for _, s := range AllSinks {
			out[s] = true
		}
		return out
	}
	for _, s := range e.Clears {
		out[s] = true
	}
	return out
}

// knownSources maps qualified accessor patterns to the kind of taint they
// introduce. Both property reads (request.args) and call targets
// (request.args.get) appear here; the tracker consults it for both shapes.
var knownSources = map[string]Source{
	// Flask / Werkzeug request surface.
	"request.args.get":    SourceUserInput,
	"request.args":        SourceUserInput,
	"request.form.get":    SourceUserInput,
	"request.form":        SourceUserInput,
	"request.values.get":  SourceUserInput,
	"request.get_json":    SourceUserInput,
	"request.json":        SourceUserInput,
	"request.data":        SourceUserInput,
	"request.cookies.get": SourceUserInput,
	"request.headers.get": SourceUserInput,
	"flask.request.args":  SourceUserInput,

	// Django.
	"request.GET.get":  SourceUserInput,
	"request.POST.get": SourceUserInput,
	"request.GET":      SourceUserInput,
	"request.POST":     SourceUserInput,

	// Plain python entry points.
	"input":                     SourceUserInput,
	"raw_input":                 SourceUserInput,
	"sys.argv":                  SourceUserInput,
	"cgi.FieldStorage.getvalue": SourceUserInput,

	// Express / Node request surface.
	"req.query":  SourceUserInput,
	"req.params": SourceUserInput,
	"req.body":   SourceUserInput,
	"ctx.query":  SourceUserInput,

	// Environment.
	"os.environ.get": SourceEnvironment,
	"os.getenv":      SourceEnvironment,
	"process.env":    SourceEnvironment,

	// File content.
	"file.read":       SourceFileContent,
	"file.readlines":  SourceFileContent,
	"fs.readFileSync": SourceFileContent,
	"fs.readFile":     SourceFileContent,

	// Network.
	"socket.recv":            SourceNetwork,
	"sock.recv":              SourceNetwork,
	"conn.recv":              SourceNetwork,
	"requests.get":           SourceNetwork,
	"urllib.request.urlopen": SourceNetwork,
}

// knownSinks maps qualified call patterns to sink categories.
var knownSinks = map[string]SinkEntry{
	// SQL execution (DB-API cursors, ORMs, node drivers).
	"cursor.execute":     {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"cursor.executemany": {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"cur.execute":        {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"execute":            {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"executescript":      {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"db.session.execute": {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"engine.execute":     {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"connection.query":   {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"knex.raw":           {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"sequelize.query":    {Sink: SinkSQLExecution, TaintedArgs: []int{0}},
	"RawSQL":             {Sink: SinkSQLExecution, TaintedArgs: []int{0}},

	// Shell / process execution.
	"os.system":               {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"os.popen":                {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"subprocess.call":         {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"subprocess.run":          {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"subprocess.Popen":        {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"subprocess.check_output": {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"subprocess.check_call":   {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"commands.getoutput":      {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"child_process.exec":      {Sink: SinkShellExecution, TaintedArgs: []int{0}},
	"child_process.execSync":  {Sink: SinkShellExecution, TaintedArgs: []int{0}},

	// Path / file access.
	"open":                {Sink: SinkPathAccess, TaintedArgs: []int{0}},
	"io.open":             {Sink: SinkPathAccess, TaintedArgs: []int{0}},
	"os.open":             {Sink: SinkPathAccess, TaintedArgs: []int{0}},
	"os.remove":           {Sink: SinkPathAccess, TaintedArgs: []int{0}},
	"os.unlink":           {Sink: SinkPathAccess, TaintedArgs: []int{0}},
	"send_file":           {Sink: SinkPathAccess, TaintedArgs: []int{0}},
	"send_from_directory": {Sink: SinkPathAccess, TaintedArgs: []int{1}},

	// Template rendering.
	"render_template_string":       {Sink: SinkTemplateRender, TaintedArgs: []int{0}},
	"flask.render_template_string": {Sink: SinkTemplateRender, TaintedArgs: []int{0}},
	"jinja2.Template":              {Sink: SinkTemplateRender, TaintedArgs: []int{0}},
	"Environment.from_string":      {Sink: SinkTemplateRender, TaintedArgs: []int{0}},
	"ejs.render":                   {Sink: SinkTemplateRender, TaintedArgs: []int{0}},
	"nunjucks.renderString":        {Sink: SinkTemplateRender, TaintedArgs: []int{0}},
	"handlebars.compile":           {Sink: SinkTemplateRender, TaintedArgs: []int{0}},

	// XML parsing.
	"xml.etree.ElementTree.fromstring": {Sink: SinkXMLParse, TaintedArgs: []int{0}},
	"ElementTree.fromstring":           {Sink: SinkXMLParse, TaintedArgs: []int{0}},
	"etree.fromstring":                 {Sink: SinkXMLParse, TaintedArgs: []int{0}},
	"lxml.etree.fromstring":            {Sink: SinkXMLParse, TaintedArgs: []int{0}},
	"lxml.etree.parse":                 {Sink: SinkXMLParse, TaintedArgs: []int{0}},
	"minidom.parseString":              {Sink: SinkXMLParse, TaintedArgs: []int{0}},
	"xml.sax.parseString":              {Sink: SinkXMLParse, TaintedArgs: []int{0}},
	"libxmljs.parseXml":                {Sink: SinkXMLParse, TaintedArgs: []int{0}},

	// LDAP.
	"ldap.simple_bind_s": {Sink: SinkLDAPBind, TaintedArgs: nil},
	"conn.simple_bind_s": {Sink: SinkLDAPBind, TaintedArgs: nil},
	"conn.search_s":      {Sink: SinkLDAPBind, TaintedArgs: nil},
	"conn.search_ext_s":  {Sink: SinkLDAPBind, TaintedArgs: nil},
	"Connection.search":  {Sink: SinkLDAPBind, TaintedArgs: nil},

	// Deserialization.
	"pickle.loads":          {Sink: SinkDeserialization, TaintedArgs: []int{0}},
	"pickle.load":           {Sink: SinkDeserialization, TaintedArgs: []int{0}},
	"cPickle.loads":         {Sink: SinkDeserialization, TaintedArgs: []int{0}},
	"yaml.load":             {Sink: SinkDeserialization, TaintedArgs: []int{0}},
	"yaml.unsafe_load":      {Sink: SinkDeserialization, TaintedArgs: []int{0}},
	"marshal.loads":         {Sink: SinkDeserialization, TaintedArgs: []int{0}},
	"jsonpickle.decode":     {Sink: SinkDeserialization, TaintedArgs: []int{0}},
	"serialize.unserialize": {Sink: SinkDeserialization, TaintedArgs: []int{0}},

	// Code evaluation.
	"eval":               {Sink: SinkCodeEval, TaintedArgs: []int{0}},
	"exec":               {Sink: SinkCodeEval, TaintedArgs: []int{0}},
	"execfile":           {Sink: SinkCodeEval, TaintedArgs: []int{0}},
	"compile":            {Sink: SinkCodeEval, TaintedArgs: []int{0}},
	"Function":           {Sink: SinkCodeEval, TaintedArgs: []int{0}},
	"vm.runInContext":    {Sink: SinkCodeEval, TaintedArgs: []int{0}},
	"vm.runInNewContext": {Sink: SinkCodeEval, TaintedArgs: []int{0}},
	"setTimeout":         {Sink: SinkCodeEval, TaintedArgs: []int{0}},

	// Markup injection.
	"document.write":          {Sink: SinkMarkupInjection, TaintedArgs: []int{0}},
	"document.writeln":        {Sink: SinkMarkupInjection, TaintedArgs: []int{0}},
	"insertAdjacentHTML":      {Sink: SinkMarkupInjection, TaintedArgs: []int{1}},
	"dangerouslySetInnerHTML": {Sink: SinkMarkupInjection, TaintedArgs: []int{0}},
	"markupsafe.Markup":       {Sink: SinkMarkupInjection, TaintedArgs: []int{0}},
	"flask.Markup":            {Sink: SinkMarkupInjection, TaintedArgs: []int{0}},
	"Markup":                  {Sink: SinkMarkupInjection, TaintedArgs: []int{0}},
	"res.send":                {Sink: SinkMarkupInjection, TaintedArgs: []int{0}},

	// Token validation entry points (JWT / SAML / OAuth).
	"jwt.decode":                       {Sink: SinkTokenValidation, TaintedArgs: []int{0}},
	"jwt.verify":                       {Sink: SinkTokenValidation, TaintedArgs: []int{0}},
	"jose.jwt.decode":                  {Sink: SinkTokenValidation, TaintedArgs: []int{0}},
	"OneLogin_Saml2_Response.is_valid": {Sink: SinkTokenValidation, TaintedArgs: []int{0}},
	"saml2.response.parse":             {Sink: SinkTokenValidation, TaintedArgs: []int{0}},
}

// knownSanitizers maps qualified call patterns to the sink categories they
// neutralize.
var knownSanitizers = map[string]SanitizerEntry{
	// Shell quoting.
	"shlex.quote": {Clears: []Sink{SinkShellExecution}},
	"pipes.quote": {Clears: []Sink{SinkShellExecution}},

	// Markup / template escaping.
	"html.escape":        {Clears: []Sink{SinkMarkupInjection, SinkTemplateRender}},
	"markupsafe.escape":  {Clears: []Sink{SinkMarkupInjection, SinkTemplateRender}},
	"cgi.escape":         {Clears: []Sink{SinkMarkupInjection, SinkTemplateRender}},
	"escape":             {Clears: []Sink{SinkMarkupInjection, SinkTemplateRender}},
	"bleach.clean":       {Clears: []Sink{SinkMarkupInjection}},
	"DOMPurify.sanitize": {Clears: []Sink{SinkMarkupInjection}},
	"encodeURIComponent": {Clears: []Sink{SinkMarkupInjection}},
	"urllib.parse.quote": {Clears: []Sink{SinkMarkupInjection}},

	// Filename restriction.
	"werkzeug.utils.secure_filename": {Clears: []Sink{SinkPathAccess}},
	"secure_filename":                {Clears: []Sink{SinkPathAccess}},
	"os.path.basename":               {Clears: []Sink{SinkPathAccess}},
	"path.basename":                  {Clears: []Sink{SinkPathAccess}},

	// SQL identifier quoting.
	"psycopg2.extensions.quote_ident": {Clears: []Sink{SinkSQLExecution}},
	"sql.Identifier":                  {Clears: []Sink{SinkSQLExecution}},
	"connection.escape":               {Clears: []Sink{SinkSQLExecution}},
	"mysql.escape":                    {Clears: []Sink{SinkSQLExecution}},

	// LDAP filter escaping.
	"ldap.filter.escape_filter_chars":      {Clears: []Sink{SinkLDAPBind}},
	"escape_filter_chars":                  {Clears: []Sink{SinkLDAPBind}},
	"ldap3.utils.conv.escape_filter_chars": {Clears: []Sink{SinkLDAPBind}},

	// Hardened XML front ends behave as sanitizing parsers.
	"defusedxml.ElementTree.fromstring": {Clears: []Sink{SinkXMLParse}},
	"defusedxml.lxml.fromstring":        {Clears: []Sink{SinkXMLParse}},

	// Numeric coercion clears everything.
	"int":        {Clears: nil},
	"float":      {Clears: nil},
	"parseInt":   {Clears: nil},
	"parseFloat": {Clears: nil},
	"Number":     {Clears: nil},

	// Safe loaders.
	"yaml.safe_load": {Clears: []Sink{SinkDeserialization}},
	"json.loads":     {Clears: []Sink{SinkDeserialization}},
}

// lookup resolves a dotted call path against a table: exact match first, then
// the trailing two segments, then the bare final segment. The fallback order
// mirrors how framework objects are re-bound locally (db.cursor().execute vs
// cursor.execute).
func lookup[T any](table map[string]T, path string) (T, string, bool) {
	var zero T
	if path == "" {
		return zero, "", false
	}
	if v, ok := table[path]; ok {
		return v, path, true
	}
	segs := strings.Split(path, ".")
	if len(segs) > 2 {
		tail := strings.Join(segs[len(segs)-2:], ".")
		if v, ok := table[tail]; ok {
			return v, tail, true
		}
	}
	if len(segs) > 1 {
		last := segs[len(segs)-1]
		if v, ok := table[last]; ok {
			return v, last, true
		}
	}
	return zero, "", false
}

// LookupSource reports whether a qualified access path introduces taint. The
// second return is the matched pattern.
func LookupSource(path string) (Source, string, bool) {
	return lookup(knownSources, path)
}

// LookupSink reports whether a qualified call path is a dangerous operation.
func LookupSink(path string) (SinkEntry, string, bool) {
	return lookup(knownSinks, path)
}

// LookupSanitizer reports whether a qualified call path neutralizes taint.
func LookupSanitizer(path string) (SanitizerEntry, string, bool) {
	return lookup(knownSanitizers, path)
}
