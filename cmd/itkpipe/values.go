package main

import (
	"fmt"
	"strings"

	"github.com/caffeineduck/itkpipe/iface"
)

var typeAliases = map[string]iface.InterfaceType{
	"text-stream":   iface.TypeTextStream,
	"binary-stream": iface.TypeBinaryStream,
	"text-file":     iface.TypeTextFile,
	"binary-file":   iface.TypeBinaryFile,
	"json":          iface.TypeJSONCompatible,
	"image":         iface.TypeImage,
	"mesh":          iface.TypeMesh,
	"polydata":      iface.TypePolyData,
}

// parseInterfaceType accepts a short alias (text-stream), the bare variant
// name (TextStream) or the full tag (InterfaceTextStream).
func parseInterfaceType(s string) (iface.InterfaceType, error) {
	if t, ok := typeAliases[strings.ToLower(s)]; ok {
		return t, nil
	}
	t := iface.InterfaceType(s)
	if !strings.HasPrefix(s, "Interface") {
		t = iface.InterfaceType("Interface" + s)
	}
	if t == "InterfaceJSONCompatible" {
		t = iface.TypeJSONCompatible
	}
	if !t.Valid() {
		return "", fmt.Errorf("unknown interface type %q", s)
	}
	return t, nil
}

// splitTyped splits "type:rest". Paths may contain colons; only the first
// one separates.
func splitTyped(arg string) (iface.InterfaceType, string, error) {
	name, rest, _ := strings.Cut(arg, ":")
	t, err := parseInterfaceType(name)
	if err != nil {
		return "", "", err
	}
	return t, rest, nil
}
