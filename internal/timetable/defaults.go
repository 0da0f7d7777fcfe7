package timetable

// NoSchoolVariant names the slotless variant used by holiday and PA day events.
const NoSchoolVariant = "no-school"

var numberChoices = []Choice{
	{Value: 1, Label: "1"},
	{Value: 2, Label: "2"},
	{Value: 3, Label: "3"},
	{Value: 4, Label: "4"},
}

// Defaults returns the built-in formats used when no formats file is configured.
func Defaults() []Definition {
	return []Definition{
		{
			Name: "pre-2020",
			Variants: []VariantDefinition{
				{
					Name: DefaultVariant,
					Slots: []SlotDefinition{
						{Label: "Period 1", Start: "08:45", End: "10:05", Positions: [][]int{{1}, {1}}},
						{Label: "Period 2", Start: "10:15", End: "11:30", Positions: [][]int{{2}, {2}}},
						{Label: "Period 3", Start: "12:30", End: "13:45", Positions: [][]int{{3}, {4}}},
						{Label: "Period 4", Start: "13:50", End: "15:05", Positions: [][]int{{4}, {3}}},
					},
				},
				{Name: NoSchoolVariant},
			},
			Positions:   []int{1, 2, 3, 4},
			CycleLength: 2,
			CycleUnit:   string(UnitDay),
			CoursesMax:  4,
			Question: Question{
				Prompt:  "Your Nth course on day 1 is this course. N = ?",
				Choices: numberChoices,
			},
		},
		{
			Name: "covid",
			Variants: []VariantDefinition{
				{
					Name: DefaultVariant,
					Slots: []SlotDefinition{
						{
							Label: "Morning Class", TimeLabel: "08:45 AM - 12:30 PM (In person)",
							Start: "08:45", End: "12:30",
							Positions: [][]int{{1}, {2}, {3}, {4}},
						},
						{
							Label: "Morning Class", TimeLabel: "08:45 AM - 12:30 PM (At home)",
							Start: "08:45", End: "12:30",
							Positions: [][]int{{2}, {1}, {4}, {3}},
						},
						{
							Label: "Afternoon Class", TimeLabel: "02:00 PM - 03:15 PM (At home)",
							Start: "14:00", End: "15:15",
							Positions: [][]int{{3, 4}, {3, 4}, {1, 2}, {1, 2}},
						},
					},
				},
				{Name: NoSchoolVariant},
			},
			Positions:   []int{1, 2, 3, 4},
			CycleLength: 4,
			CycleUnit:   string(UnitDay),
			CoursesMax:  2,
			Question: Question{
				Prompt:  "On which day are you in person for this course?",
				Choices: numberChoices,
			},
		},
		{
			Name: "week",
			Variants: []VariantDefinition{
				{
					Name: DefaultVariant,
					Slots: []SlotDefinition{
						{Label: "Morning Class", Start: "09:00", End: "11:30", Positions: [][]int{{1, 5, 7}, {3, 6, 7}}},
						{Label: "Afternoon Class", Start: "12:15", End: "14:45", Positions: [][]int{{2, 5, 7}, {4, 6, 7}}},
					},
				},
				{
					Name: "late-start",
					Slots: []SlotDefinition{
						{Label: "Morning Class", Start: "10:00", End: "12:00", Positions: [][]int{{1, 5, 7}, {3, 6, 7}}},
						{Label: "Afternoon Class", Start: "12:45", End: "14:45", Positions: [][]int{{2, 5, 7}, {4, 6, 7}}},
					},
				},
				{
					Name: "early-dismissal",
					Slots: []SlotDefinition{
						{Label: "Morning Class", Start: "09:00", End: "10:14", Positions: [][]int{{1, 5, 7}, {3, 6, 7}}},
						{Label: "Afternoon Class", Start: "10:16", End: "11:30", Positions: [][]int{{2, 5, 7}, {4, 6, 7}}},
					},
				},
				{Name: NoSchoolVariant},
			},
			Positions:   []int{1, 2, 3, 4, 5, 6, 7},
			CycleLength: 2,
			CycleUnit:   string(UnitWeek),
			CoursesMax:  4,
			Question: Question{
				Prompt: "When do you have class for this course?",
				Choices: []Choice{
					{Value: 1, Label: "Week 1 Morning"},
					{Value: 2, Label: "Week 1 Afternoon"},
					{Value: 3, Label: "Week 2 Morning"},
					{Value: 4, Label: "Week 2 Afternoon"},
					{Value: 5, Label: "This course is a 2-credit Co-op in Week 1."},
					{Value: 6, Label: "This course is a 2-credit Co-op in Week 2."},
					{Value: 7, Label: "This course is a 4-credit Co-op."},
				},
			},
		},
	}
}
