package templates

import (
	"context"
	"html/template"
	"io"

	"github.com/a-h/templ"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{template "title" .}} · {{siteName .SiteName}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:#f0f0f1;color:#1d2327;margin:0}
main{max-width:420px;margin:64px auto;background:#fff;border:1px solid #c3c4c7;padding:26px 24px}
h1{font-size:20px;margin-top:0}
.error{background:#fcf0f1;border-left:4px solid #d63638;padding:8px 12px;margin-bottom:16px}
.scope{display:flex;gap:8px;padding:6px 0}
label{display:block;margin:12px 0 4px}
input[type=text],input[type=password]{width:100%;box-sizing:border-box;padding:6px 8px}
.actions{display:flex;gap:8px;margin-top:20px}
button{padding:6px 14px;cursor:pointer}
button.primary{background:#2271b1;color:#fff;border:1px solid #2271b1}
</style>
</head>
<body><main>{{template "content" .}}</main></body>
</html>{{end}}`

const errorPage = `{{define "title"}}Error{{end}}
{{define "content"}}<h1>Authorization error</h1>
<div class="error"><strong>{{.Error}}</strong>{{if .Message}}<p>{{.Message}}</p>{{end}}</div>
<p>You can close this window and return to the application.</p>{{end}}`

const loginPage = `{{define "title"}}Log In{{end}}
{{define "content"}}<h1>Log in</h1>
{{if .Error}}<div class="error">{{.Error}}</div>{{end}}
<form method="post" action="/login">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<input type="hidden" name="redirect" value="{{.Redirect}}">
<label for="username">Username</label>
<input type="text" id="username" name="username" value="{{.Username}}" autocomplete="username" required>
<label for="password">Password</label>
<input type="password" id="password" name="password" autocomplete="current-password" required>
<div class="actions"><button class="primary" type="submit">Log In</button></div>
</form>{{end}}`

const consentPage = `{{define "title"}}Authorize {{.ClientName}}{{end}}
{{define "content"}}<h1>Authorize {{.ClientName}}</h1>
<p>Hi <strong>{{.Username}}</strong>, <strong>{{.ClientName}}</strong> would like to:</p>
<ul>{{range .Scopes}}<li class="scope"><span>{{.Icon}}</span><span>{{.Description}}</span></li>{{end}}</ul>
<form method="post" action="/oauth2/v1/authorize">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<input type="hidden" name="response_type" value="{{.ResponseType}}">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<input type="hidden" name="state" value="{{.State}}">
<input type="hidden" name="scope" value="{{.Scope}}">
{{if .CodeChallenge}}<input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
<input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">{{end}}
<div class="actions">
<button class="primary" type="submit" name="oauth2_consent" value="approve">Approve</button>
<button type="submit" name="oauth2_consent" value="deny">Deny</button>
</div>
</form>{{end}}`

const accountPage = `{{define "title"}}Account{{end}}
{{define "content"}}<h1>{{if .DisplayName}}{{.DisplayName}}{{else}}{{.Username}}{{end}}</h1>
<p>Signed in as <strong>{{.Username}}</strong>{{if .Email}} ({{.Email}}){{end}}.</p>
<p>Roles: {{range $i, $r := .Roles}}{{if $i}}, {{end}}{{$r}}{{end}}</p>
<form method="post" action="/logout">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<button type="submit">Log Out</button>
</form>{{end}}`

var funcs = template.FuncMap{
	"siteName": func(name string) string {
		if name == "" {
			return "WordPress"
		}
		return name
	},
}

func mustPage(body string) *template.Template {
	t := template.Must(template.New("layout").Funcs(funcs).Parse(layout))
	return template.Must(t.Parse(body))
}

var (
	errorTmpl   = mustPage(errorPage)
	loginTmpl   = mustPage(loginPage)
	consentTmpl = mustPage(consentPage)
	accountTmpl = mustPage(accountPage)
)

func component(t *template.Template, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, "layout", data)
	})
}

func ErrorPage(props ErrorPageProps) templ.Component {
	return component(errorTmpl, props)
}

func LoginPage(props LoginPageProps) templ.Component {
	return component(loginTmpl, props)
}

func ConsentPage(props ConsentPageProps) templ.Component {
	return component(consentTmpl, props)
}

func AccountPage(props AccountPageProps) templ.Component {
	return component(accountTmpl, props)
}
