package auth

import "html"

const successPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>flyover</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 15vh">
<h1>Connected to Spotify</h1>
<p>You can close this tab and return to flyover.</p>
</body></html>
`

func errorPage(err error) string {
	return `<!doctype html>
<html><head><meta charset="utf-8"><title>flyover</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 15vh">
<h1>Authorization failed</h1>
<p>` + html.EscapeString(err.Error()) + `</p>
<p>Return to flyover and press c to try again.</p>
</body></html>
`
}
