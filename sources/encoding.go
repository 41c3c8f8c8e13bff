package sources

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// supported maps charset labels to decoders. CP949 is a superset of EUC-KR and
// the EUC-KR decoder accepts its extension range. A nil decoder means UTF-8.
var supported = map[string]encoding.Encoding{
	"utf-8":          nil,
	"utf8":           nil,
	"euc-kr":         korean.EUCKR,
	"cp949":          korean.EUCKR,
	"ks_c_5601-1987": korean.EUCKR,
	"iso-8859-1":     charmap.ISO8859_1,
	"windows-1252":   charmap.ISO8859_1,
	"latin1":         charmap.ISO8859_1,
}

// DetectCharset picks one of UTF-8, EUC-KR/CP949 or ISO-8859-1 for body.
// Order: a declared charset (BOM, Content-Type, meta) that is supported, then
// UTF-8 validity, then byte sniffing, then EUC-KR.
func DetectCharset(body []byte, contentType string) string {
	// Uncertain utf-8 and windows-1252 are guesses over the first 1KB, not
	// declarations; the full-body checks below decide those.
	if _, name, certain := charset.DetermineEncoding(body, contentType); certain || (name != "windows-1252" && name != "utf-8") {
		if _, ok := supported[strings.ToLower(name)]; ok {
			return strings.ToLower(name)
		}
	}
	if utf8.Valid(body) {
		return "utf-8"
	}
	if res, err := chardet.NewTextDetector().DetectBest(body); err == nil && res != nil {
		if _, ok := supported[strings.ToLower(res.Charset)]; ok {
			return strings.ToLower(res.Charset)
		}
	}
	return "euc-kr"
}

// DecodeToUTF8 transcodes body to UTF-8. Invalid byte sequences are dropped,
// never reported.
func DecodeToUTF8(body []byte, contentType string) string {
	name := DetectCharset(body, contentType)
	enc := supported[name]
	if enc == nil {
		return strings.ToValidUTF8(string(body), "")
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "")
	}
	return strings.ReplaceAll(strings.ToValidUTF8(string(out), ""), string(utf8.RuneError), "")
}
