package web

import "html/template"

const pageStyle = `
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    padding: 2rem 1rem;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2rem;
    max-width: 760px;
    margin: 0 auto;
    box-shadow: 0 1px 3px rgba(0,0,0,0.06);
  }
  .card h1 { font-size: 1.25rem; font-weight: 600; margin-bottom: 0.25rem; }
  .card p.sub { color: #666; font-size: 0.875rem; margin-bottom: 1.5rem; }
  .userbar { display: flex; justify-content: space-between; align-items: baseline; margin-bottom: 1.5rem; }
  .userbar .who { color: #444; font-size: 0.875rem; }
  .userbar a { color: #b00; font-size: 0.875rem; text-decoration: none; }
  .error {
    background: #fdecea;
    border: 1px solid #f5c6c2;
    border-radius: 4px;
    color: #8a1f1a;
    padding: 0.75rem;
    font-size: 0.875rem;
    margin-bottom: 1rem;
    white-space: pre-line;
  }
  form.lookup { display: flex; gap: 0.5rem; margin-bottom: 1.5rem; }
  form.lookup input[type=text] {
    flex: 1;
    border: 1px solid #ccc;
    border-radius: 4px;
    padding: 0.5rem 0.75rem;
    font-size: 0.9rem;
  }
  button, a.button {
    background: #1a73e8;
    border: none;
    border-radius: 4px;
    color: #fff;
    cursor: pointer;
    font-size: 0.9rem;
    padding: 0.5rem 1rem;
    text-decoration: none;
    display: inline-block;
  }
  table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
  th, td { text-align: left; padding: 0.5rem 0.5rem; border-bottom: 1px solid #eee; }
  th { color: #666; font-weight: 600; }
  td.num { text-align: right; white-space: nowrap; }
`

// loginPage is shown to unauthenticated visitors.
var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>diskview</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
  <h1>diskview</h1>
  <p class="sub">Browse and download files from a public Yandex Disk folder.</p>
  <a class="button" href="/auth">Sign in with Yandex</a>
</div>
</body>
</html>`))

// indexPage renders the listing form and results for a signed-in user.
var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>diskview</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
  <div class="userbar">
    <span class="who">Signed in as <strong>{{.User.Login}}</strong>{{if .User.Email}} ({{.User.Email}}){{end}}</span>
    <a href="/logout">Sign out</a>
  </div>
  <h1>Public folder</h1>
  <p class="sub">Paste a share link like https://disk.yandex.ru/d/AbCdEfGhIjKlMn</p>
  {{if .Error}}<div class="error">{{.Error}}</div>{{end}}
  <form class="lookup" method="POST" action="/">
    <input type="text" name="public_url" value="{{.PublicURL}}" placeholder="https://disk.yandex.ru/d/..." autofocus>
    <button type="submit">List files</button>
  </form>
  {{if .Files}}
  <table>
    <tr><th>Name</th><th>Type</th><th class="num">Size</th><th>Modified</th><th></th></tr>
    {{range .Files}}
    <tr>
      <td>{{.Name}}</td>
      <td>{{.MediaType}}</td>
      <td class="num">{{.Size}}</td>
      <td>{{.Modified}}</td>
      <td><a href="{{.Href}}">Download</a></td>
    </tr>
    {{end}}
  </table>
  {{end}}
</div>
</body>
</html>`))

// errorPage is used for failures outside the listing flow, where there
// is no form state to echo back.
var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>diskview</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
  <h1>Something went wrong</h1>
  <div class="error">{{.Error}}</div>
  <a class="button" href="/">Back</a>
</div>
</body>
</html>`))

// fileRow is a FileEntry plus its ready-made download link.
type fileRow struct {
	Name      string
	MediaType string
	Size      int64
	Modified  string
	Href      template.URL
}

type indexData struct {
	User      userData
	Files     []fileRow
	PublicURL string
	Error     string
}

type userData struct {
	Login string
	Name  string
	Email string
}

type errorData struct {
	Error string
}
