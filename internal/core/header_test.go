package core

import (
	"testing"
)

func TestDetectLayout(t *testing.T) {
	tests := []struct {
		name string
		rows [][]Cell
		want HeaderLayout
	}{
		{
			name: "layout A anchors",
			rows: headerA("Norte", "12", "Centro", "", "", "", "", nil),
			want: LayoutA,
		},
		{
			name: "layout B anchors",
			rows: headerB("Sur", "7", "El Tule", "", "", "", "", nil, nil),
			want: LayoutB,
		},
		{
			name: "empty grid defaults to A",
			rows: nil,
			want: LayoutA,
		},
		{
			name: "label-only cells count as empty",
			rows: [][]Cell{{nil, "RUTA:", "El Tule", nil, nil, "POBLACION:", nil, "Sur"}},
			want: LayoutB,
		},
		{
			name: "A wins when both populated",
			rows: [][]Cell{{nil, "Norte", "El Tule", nil, nil, "Centro", nil, "Sur"}},
			want: LayoutA,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLayout(tt.rows); got != tt.want {
				t.Errorf("DetectLayout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractHeader(t *testing.T) {
	tests := []struct {
		name string
		rows [][]Cell
		want SheetHeader
	}{
		{
			name: "layout A with labels and serial birthday",
			rows: headerA("RUTA: Norte", "NO. 12", "Población: Centro", "semanal", "COORD: Rosa  Ruiz", "TEL: 555-0101", "Domicilio: Calle 5", 45489.0),
			want: SheetHeader{
				PopulationNumber:    "12",
				PopulationName:      "CENTRO",
				RouteName:           "NORTE",
				Frequency:           "SEMANAL",
				CoordinatorName:     "ROSA RUIZ",
				CoordinatorPhone:    "555-0101",
				CoordinatorAddress:  "CALLE 5",
				CoordinatorBirthday: "2024-07-16",
				Layout:              LayoutA,
			},
		},
		{
			name: "layout A free text birthday",
			rows: headerA("Norte", "", "Centro", "", "Coordinadora: Ana", "", "", "Cumpleaños: 16 de julio"),
			want: SheetHeader{
				PopulationName:      "CENTRO",
				RouteName:           "NORTE",
				CoordinatorName:     "ANA",
				CoordinatorBirthday: "2024-07-16",
				Layout:              LayoutA,
			},
		},
		{
			name: "layout A day-only birthday kept as text",
			rows: headerA("Norte", "", "Centro", "", "", "", "", 16.0),
			want: SheetHeader{
				PopulationName:      "CENTRO",
				RouteName:           "NORTE",
				CoordinatorBirthday: "16",
				Layout:              LayoutA,
			},
		},
		{
			name: "layout B numeric day and month",
			rows: headerB("Ruta Sur", "7", "El Tule", "Quincenal", "Coordinadora: Rosa Ruiz", "555", "Av 1", 16.0, 7.0),
			want: SheetHeader{
				PopulationNumber:    "7",
				PopulationName:      "EL TULE",
				RouteName:           "RUTA SUR",
				Frequency:           "QUINCENAL",
				CoordinatorName:     "ROSA RUIZ",
				CoordinatorPhone:    "555",
				CoordinatorAddress:  "AV 1",
				CoordinatorBirthday: "2024-07-16",
				Layout:              LayoutB,
			},
		},
		{
			name: "layout B month name",
			rows: headerB("Sur", "", "El Tule", "", "", "", "", "3", "dic"),
			want: SheetHeader{
				PopulationName:      "EL TULE",
				RouteName:           "SUR",
				CoordinatorBirthday: "2024-12-03",
				Layout:              LayoutB,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractHeader(tt.rows, testNow)
			if got != tt.want {
				t.Errorf("ExtractHeader() =\n  %+v\nwant\n  %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeHeader_Idempotent(t *testing.T) {
	headers := []SheetHeader{
		{},
		{PopulationName: "  san   juan ", RouteName: "ruta: norte", CoordinatorName: "Coord: María"},
		{CoordinatorBirthday: "16 Jul"},
		{CoordinatorBirthday: "Cumpleaños: 3 de dic"},
		{CoordinatorBirthday: "16/07"},
		{CoordinatorBirthday: "45489"},
		{CoordinatorBirthday: "not a date"},
		{CoordinatorPhone: "TEL: CEL: 555", CoordinatorAddress: "Dirección. calle 5"},
		{PopulationNumber: `="012"`, Frequency: "pago: Semanal", Municipality: " oaxaca ", State: "oax"},
		{CoordinatorName: "J. Pérez"},
	}

	for _, h := range headers {
		once := NormalizeHeaderAt(h, testNow)
		twice := NormalizeHeaderAt(once, testNow)
		if once != twice {
			t.Errorf("normalization not idempotent for %+v:\n  once:  %+v\n  twice: %+v", h, once, twice)
		}
	}
}

func TestStripLabels(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "RUTA: Norte", want: "Norte"},
		{input: "Coordinadora:  Ana", want: "Ana"},
		{input: "TEL: CEL: 555", want: "555"},
		{input: "POB. San Juan", want: "San Juan"},
		{input: "Coord.: María", want: "María"},
		{input: "No.: 12", want: "12"},
		{input: "TEL. : 555", want: "555"},
		{input: "J. Pérez", want: "J. Pérez"},
		{input: "Calle 5: interior", want: "Calle 5: interior"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := stripLabels(tt.input); got != tt.want {
				t.Errorf("stripLabels(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
