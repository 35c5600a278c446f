package artifact

import (
	"encoding/xml"
	"strings"
)

// xUnit-style XML report: a flat list of testcase elements, possibly
// nested inside testsuite elements, with failure/error children.

type xunitDoc struct {
	Suites []xunitSuite `xml:"testsuite"`
	Cases  []xunitCase  `xml:"testcase"`
}

type xunitSuite struct {
	Suites []xunitSuite `xml:"testsuite"`
	Cases  []xunitCase  `xml:"testcase"`
}

type xunitCase struct {
	ClassName string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Failure   *xunitFailure `xml:"failure"`
	Error     *xunitFailure `xml:"error"`
}

type xunitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// parseXUnit returns the first failing testcase. The failure (or error)
// child supplies message and stack; the title is classname.name.
func parseXUnit(data []byte) (Summary, bool) {
	var doc xunitDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Summary{}, false
	}
	if c, f := firstFailingCase(doc.Cases, doc.Suites); c != nil {
		title := c.Name
		if c.ClassName != "" {
			title = c.ClassName + "." + c.Name
		}
		return Summary{
			Title:   title,
			Message: f.Message,
			Stack:   strings.TrimSpace(f.Body),
		}, true
	}
	return Summary{}, false
}

func firstFailingCase(cases []xunitCase, suites []xunitSuite) (*xunitCase, *xunitFailure) {
	for i := range cases {
		c := &cases[i]
		if c.Failure != nil {
			return c, c.Failure
		}
		if c.Error != nil {
			return c, c.Error
		}
	}
	for i := range suites {
		if c, f := firstFailingCase(suites[i].Cases, suites[i].Suites); c != nil {
			return c, f
		}
	}
	return nil, nil
}
