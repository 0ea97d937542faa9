package vespa

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/db"
)

const deployPath = "/application/v2/tenant/default/prepareandactivate"

// RenderServices renders services.xml for a single-node application serving def.
func RenderServices(appName string, def *db.SchemaDefinition) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<services version="1.0">` + "\n")
	fmt.Fprintf(&b, "    <container id=\"%s_container\" version=\"1.0\">\n", appName)
	b.WriteString("        <search></search>\n")
	b.WriteString("        <document-api></document-api>\n")
	b.WriteString("    </container>\n")
	fmt.Fprintf(&b, "    <content id=\"%s_content\" version=\"1.0\">\n", appName)
	b.WriteString("        <redundancy reply-after=\"1\">1</redundancy>\n")
	b.WriteString("        <documents>\n")
	fmt.Fprintf(&b, "            <document type=\"%s\" mode=\"index\"></document>\n", def.Name)
	b.WriteString("        </documents>\n")
	b.WriteString("        <nodes>\n")
	b.WriteString("            <node distribution-key=\"0\" hostalias=\"node1\"></node>\n")
	b.WriteString("        </nodes>\n")
	b.WriteString("    </content>\n")
	b.WriteString("</services>\n")
	return b.String()
}

// PackageFiles returns the application package as slash-separated path -> contents.
func PackageFiles(appName string, def *db.SchemaDefinition) (map[string]string, error) {
	sd, err := RenderSchema(def)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, 2)
	files["services.xml"] = RenderServices(appName, def)
	files["schemas/"+def.Name+".sd"] = sd
	return files, nil
}

// Package zips the application package.
func Package(appName string, def *db.SchemaDefinition) ([]byte, error) {
	files, err := PackageFiles(appName, def)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range sortedKeys(files) {
		f, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
		if _, err := io.WriteString(f, files[name]); err != nil {
			return nil, fmt.Errorf("zip %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePackage writes the application package under dir.
func WritePackage(dir, appName string, def *db.SchemaDefinition) error {
	files, err := PackageFiles(appName, def)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(files) {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(files[name]), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// Deploy uploads the application package and activates it.
func (c *Client) Deploy(ctx context.Context, def *db.SchemaDefinition) error {
	if c.cfg.ConfigServer == "" {
		return &db.Error{Op: db.OpDeploy, Err: fmt.Errorf("config server is not configured")}
	}
	pkg, err := Package(c.cfg.AppName, def)
	if err != nil {
		return &db.Error{Op: db.OpDeploy, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ConfigServer+deployPath, bytes.NewReader(pkg))
	if err != nil {
		return &db.Error{Op: db.OpDeploy, Err: err}
	}
	req.Header.Set("Content-Type", "application/zip")
	c.authorize(req)

	resp, err := c.deploy.Do(req)
	if err != nil {
		return &db.Error{Op: db.OpDeploy, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return statusError(db.OpDeploy, resp.StatusCode, body)
	}

	c.logger.Info("Application package deployed",
		zap.String("app", c.cfg.AppName),
		zap.String("schema", def.Name),
		zap.Int("package_bytes", len(pkg)),
	)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
