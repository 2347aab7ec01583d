package importer

import (
	"strings"
)

// column は取込対象の列と、見出しとして受け付ける別名。
type column struct {
	field   string
	aliases []string
}

var studentColumns = []column{
	{field: "matricula", aliases: []string{"Matrícula", "Matricula"}},
	{field: "name", aliases: []string{"Nombre", "Nombre Completo"}},
	{field: "career", aliases: []string{"Carrera", "Carrera (Nombre)"}},
	{field: "grade", aliases: []string{"Grado", "Cuatrimestre", "Semestre"}},
	{field: "group", aliases: []string{"Grupo", "Seccion", "Sección"}},
	{field: "shift", aliases: []string{"Turno"}},
	{field: "generation", aliases: []string{"Generación", "Generacion"}},
	{field: "director", aliases: []string{"Nombre del Director", "Director"}},
}

var companyColumns = []column{
	{field: "name", aliases: []string{"Empresa", "Nombre"}},
	{field: "address", aliases: []string{"Dirección", "Direccion"}},
	{field: "contact", aliases: []string{"Contacto", "Responsable"}},
	{field: "business_line", aliases: []string{"Giro"}},
	{field: "email", aliases: []string{"Correo", "Email"}},
	{field: "phone", aliases: []string{"Teléfono", "Telefono"}},
}

// headerIndex は見出し行から列名→列番号の対応を作る。
// 見出しの比較は前後の空白を除いた大文字小文字を区別しない完全一致で、
// 最初に一致した列を採用する。
func headerIndex(header []string, columns []column) map[string]int {
	idx := make(map[string]int, len(columns))
	for _, c := range columns {
		for i, h := range header {
			if matchesAlias(h, c.aliases) {
				idx[c.field] = i
				break
			}
		}
	}
	return idx
}

func matchesAlias(header string, aliases []string) bool {
	h := strings.TrimSpace(header)
	for _, a := range aliases {
		if strings.EqualFold(h, a) {
			return true
		}
	}
	return false
}

// record は1行分の値を列名で取り出す。
type record struct {
	cells []string
	index map[string]int
}

func (r record) get(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return clean(r.cells[i])
}

// clean はセルの値を整える。数式エラー（#で始まる値やERRORを含む値）は"--"に置き換える。
func clean(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "#") || strings.Contains(v, "ERROR") {
		return "--"
	}
	return v
}
