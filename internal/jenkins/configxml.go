package jenkins

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/buildsync/bridge/runner"
)

// Parameter definitions live inside the job's config.xml; the remote API has
// no finer-grained endpoint, so updating them means fetching the document,
// splicing the parameters property, and posting the whole thing back.

const (
	paramsPropertyOpen  = "<hudson.model.ParametersDefinitionProperty>"
	paramsPropertyClose = "</hudson.model.ParametersDefinitionProperty>"
)

func (c *Client) getConfigXML(ctx context.Context, name string) (string, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/job/"+url.PathEscape(name)+"/config.xml", nil, "", nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &APIError{StatusCode: status, Message: string(body)}
	}
	return string(body), nil
}

func (c *Client) postConfigXML(ctx context.Context, name, configXML string) error {
	body, status, err := c.do(ctx, http.MethodPost, "/job/"+url.PathEscape(name)+"/config.xml", nil, "application/xml", strings.NewReader(configXML))
	if err != nil {
		return err
	}
	if status >= 200 && status < 400 {
		return nil
	}
	return &APIError{StatusCode: status, Message: string(body)}
}

// spliceParametersProperty replaces the parameters property of a job config
// with one rendered from defs. An empty defs removes the property.
func spliceParametersProperty(configXML string, defs []runner.ParameterDefinition) (string, error) {
	rendered := renderParametersProperty(defs)

	if start := strings.Index(configXML, paramsPropertyOpen); start >= 0 {
		end := strings.Index(configXML[start:], paramsPropertyClose)
		if end < 0 {
			return "", errors.New("unterminated parameters property in job config")
		}
		end += start + len(paramsPropertyClose)
		return configXML[:start] + rendered + configXML[end:], nil
	}

	if rendered == "" {
		return configXML, nil
	}
	if idx := strings.Index(configXML, "<properties/>"); idx >= 0 {
		return configXML[:idx] + "<properties>" + rendered + "</properties>" + configXML[idx+len("<properties/>"):], nil
	}
	if idx := strings.Index(configXML, "<properties>"); idx >= 0 {
		insert := idx + len("<properties>")
		return configXML[:insert] + rendered + configXML[insert:], nil
	}
	return "", errors.New("no properties element in job config")
}

func renderParametersProperty(defs []runner.ParameterDefinition) string {
	if len(defs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(paramsPropertyOpen)
	b.WriteString("<parameterDefinitions>")
	for _, def := range defs {
		renderParameterDefinition(&b, def)
	}
	b.WriteString("</parameterDefinitions>")
	b.WriteString(paramsPropertyClose)
	return b.String()
}

var kindToClass = map[runner.ParameterKind]string{
	runner.KindString:      "hudson.model.StringParameterDefinition",
	runner.KindBoolean:     "hudson.model.BooleanParameterDefinition",
	runner.KindChoice:      "hudson.model.ChoiceParameterDefinition",
	runner.KindFile:        "hudson.model.FileParameterDefinition",
	runner.KindPassword:    "hudson.model.PasswordParameterDefinition",
	runner.KindRun:         "hudson.model.RunParameterDefinition",
	runner.KindCredentials: "com.cloudbees.plugins.credentials.CredentialsParameterDefinition",
}

func renderParameterDefinition(b *strings.Builder, def runner.ParameterDefinition) {
	class, ok := kindToClass[def.Kind]
	if !ok {
		// Kinds we cannot round-trip degrade to plain strings rather than
		// dropping the parameter from the job.
		class = kindToClass[runner.KindString]
	}

	b.WriteString("<" + class + ">")
	writeElement(b, "name", def.Name)
	if def.Description != "" {
		writeElement(b, "description", def.Description)
	}
	switch def.Kind {
	case runner.KindChoice:
		b.WriteString(`<choices class="java.util.Arrays$ArrayList"><a class="string-array">`)
		for _, choice := range def.Choices {
			writeElement(b, "string", choice)
		}
		b.WriteString("</a></choices>")
	case runner.KindFile:
		// File parameters carry no default.
	case runner.KindBoolean:
		value := "false"
		if def.Default == "true" {
			value = "true"
		}
		writeElement(b, "defaultValue", value)
	default:
		if def.Default != "" {
			writeElement(b, "defaultValue", def.Default)
		}
	}
	b.WriteString("</" + class + ">")
}

func writeElement(b *strings.Builder, tag, text string) {
	b.WriteString("<" + tag + ">")
	_ = xml.EscapeText(b, []byte(text))
	b.WriteString("</" + tag + ">")
}
