package handlers

import "html/template"

const (
	SuccessPage = "success.html"
	FailurePage = "failure.html"
)

const pageStyle = `<style>
		body { font-family: Arial, sans-serif; text-align: center; padding: 50px; }
		.success { color: green; }
		.failure { color: red; }
	</style>`

// Pages holds the HTML shown to the customer after the gateway redirect.
var Pages = template.Must(template.New(SuccessPage).Parse(`<!DOCTYPE html>
<html>
<head>
	<title>{{if .Verified}}Payment Success{{else}}Payment Not Verified{{end}}</title>
	` + pageStyle + `
</head>
<body>
	{{if .Verified}}<h1 class="success">Payment Successful!</h1>{{else}}<h1 class="failure">Payment Not Verified</h1>{{end}}
	<p>Transaction ID: {{.TransactionID}}</p>
	<p>Amount: Rs. {{.Amount}}</p>
	{{if .RefID}}<p>Reference ID: {{.RefID}}</p>{{end}}
	<p>Status: {{.Status}}</p>
	{{if not .Verified}}<p>{{.Message}}</p>{{end}}
</body>
</html>
`))

func init() {
	template.Must(Pages.New(FailurePage).Parse(`<!DOCTYPE html>
<html>
<head>
	<title>Payment Failed</title>
	` + pageStyle + `
</head>
<body>
	<h1 class="failure">Payment Failed</h1>
	{{if .ProductID}}<p>Product ID: {{.ProductID}}</p>{{end}}
	{{if .Message}}<p>Message: {{.Message}}</p>{{end}}
	<p>Please try again or contact support.</p>
</body>
</html>
`))
}

type successPageData struct {
	Verified      bool
	TransactionID string
	Amount        string
	RefID         string
	Status        string
	Message       string
}

type failurePageData struct {
	ProductID string
	Message   string
}
